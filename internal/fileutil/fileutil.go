// Package fileutil holds small file helpers for result documents and
// registry seeding.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SeedDir copies every regular file at the root of fsys into dir. Files that
// already exist in dir are left untouched. It returns the names written.
func SeedDir(fsys fs.FS, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	var written []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		dst := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return written, err
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return written, err
		}
		if err := WriteFileAtomic(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("seed %s: %w", entry.Name(), err)
		}
		written = append(written, entry.Name())
	}
	return written, nil
}

// WriteFileAtomic writes data to a temporary file next to dst, verifies the
// written bytes by SHA256, then renames it over dst. Readers see either the
// old file or the complete new one.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}

	written, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("read back temp file: %w", err)
	}
	want := sha256.Sum256(data)
	got := sha256.Sum256(written)
	if len(written) != len(data) || !bytes.Equal(want[:], got[:]) {
		return fmt.Errorf("write verification failed: expected %d bytes, found %d", len(data), len(written))
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return nil
}
