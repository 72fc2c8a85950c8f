package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"opgrid/internal/lifecycle"
	"opgrid/internal/services"
)

var (
	// ErrJobNotFound is returned when no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrIllegalTransition is returned when a status change is not an edge
	// of the lifecycle state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
)

const jobColumns = "id, session, marker, operator, user_name, role, status, descriptor, error_message, group_size, created_at, updated_at"

// Create records rec in CREATED. An existing job with the same ID is reset
// and keeps its history, with the reset appended.
func (s *Store) Create(ctx context.Context, rec *lifecycle.JobRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return services.Wrap(services.ErrValidation, "jobstore", "create", "job id is required", nil)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Status = lifecycle.StatusCreated
	rec.Error = ""
	groupSize := rec.GroupSize
	if groupSize < 1 {
		groupSize = 1
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, session, marker, operator, user_name, role, status, descriptor, error_message, group_size, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET
                 session = excluded.session,
                 marker = excluded.marker,
                 operator = excluded.operator,
                 user_name = excluded.user_name,
                 role = excluded.role,
                 status = excluded.status,
                 descriptor = excluded.descriptor,
                 error_message = NULL,
                 group_size = excluded.group_size,
                 updated_at = excluded.updated_at`,
			rec.ID,
			nullableString(rec.Session),
			nullableString(rec.Marker),
			rec.Operator,
			nullableString(rec.User),
			nullableString(rec.Role),
			int(lifecycle.StatusCreated),
			rec.Descriptor,
			groupSize,
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
		); err != nil {
			return err
		}
		return appendHistory(ctx, tx, rec.ID, lifecycle.StatusCreated, "", rec.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("create job %s: %w", rec.ID, err)
	}
	return nil
}

// Transition moves job id to status. The move must be an edge of the
// lifecycle state machine; message is kept as the job error for error
// statuses.
func (s *Store) Transition(ctx context.Context, id string, status lifecycle.Status, message string) error {
	if !status.Valid() {
		return fmt.Errorf("transition job %s: unknown status %d", id, int(status))
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current int
		row := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id)
		if err := row.Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(id)
			}
			return err
		}
		from := lifecycle.Status(current)
		if !lifecycle.CanTransition(from, status) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, status)
		}

		var errorMessage any
		if status.IsError() {
			errorMessage = nullableString(message)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			int(status), errorMessage, formatTime(now), id,
		); err != nil {
			return err
		}
		return appendHistory(ctx, tx, id, status, message, now)
	})
	if err != nil {
		return fmt.Errorf("transition job %s to %s: %w", id, status, err)
	}
	return nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, id string, status lifecycle.Status, message string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_history (job_id, status, message, recorded_at) VALUES (?, ?, ?, ?)`,
		id, int(status), nullableString(message), formatTime(at),
	)
	return err
}

// Get returns the job with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*lifecycle.JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// History returns every recorded status of job id, oldest first.
func (s *Store) History(ctx context.Context, id string) ([]lifecycle.HistoryEntry, error) {
	ctx = ensureContext(ctx)
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, message, recorded_at FROM job_history WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("job history %s: %w", id, err)
	}
	defer rows.Close()

	var history []lifecycle.HistoryEntry
	for rows.Next() {
		var (
			status   int
			message  sql.NullString
			recorded string
		)
		if err := rows.Scan(&status, &message, &recorded); err != nil {
			return nil, err
		}
		entry := lifecycle.HistoryEntry{Status: lifecycle.Status(status), Message: message.String}
		if at, err := parseTimeString(recorded); err == nil {
			entry.At = at
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Statuses []lifecycle.Status
	Session  string
	Operator string
	Limit    int
}

// List returns jobs matching filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*lifecycle.JobRecord, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, int(status))
		}
	}
	if filter.Session != "" {
		where = append(where, "session = ?")
		args = append(args, filter.Session)
	}
	if filter.Operator != "" {
		where = append(where, "operator = ? COLLATE NOCASE")
		args = append(args, filter.Operator)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*lifecycle.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, rec)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[lifecycle.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[lifecycle.Status]int)
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[lifecycle.Status(status)] = count
	}
	return stats, rows.Err()
}

// Prune removes terminal jobs last updated before cutoff, along with their
// history.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := []any{int(lifecycle.StatusCompleted)}
	for status := lifecycle.StatusSetEnvError; status <= lifecycle.StatusUnsetEnvError; status++ {
		terminal = append(terminal, int(status))
	}
	args := append([]any{formatTime(cutoff.UTC())}, terminal...)

	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		where := `updated_at < ? AND status IN (` + makePlaceholders(len(terminal)) + `)`
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_history WHERE job_id IN (SELECT id FROM jobs WHERE `+where+`)`,
			args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE `+where, args...)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return removed, nil
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "jobstore", "lookup", fmt.Sprintf("no job with id %q", id), ErrJobNotFound)
}
