package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. There are no
// migrations; a mismatching database has to be removed.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// opgrid release.
var ErrSchemaMismatch = errors.New("job store schema version mismatch")

// initSchema creates the tables on first use and refuses databases written
// with another schema version.
func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}
	switch version {
	case 0:
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: %s has version %d, this build expects %d",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
}

// storedSchemaVersion returns 0 for a fresh database.
func (s *Store) storedSchemaVersion(ctx context.Context) (int, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect job store: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
