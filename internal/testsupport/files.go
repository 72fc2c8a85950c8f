package testsupport

import (
	"io/fs"
	"testing"

	"opgrid/internal/fileutil"
)

// CopyFS copies every regular file at the root of fsys into dir. It is used
// to seed a registry directory from embedded schema documents.
func CopyFS(t testing.TB, fsys fs.FS, dir string) {
	t.Helper()

	if _, err := fileutil.SeedDir(fsys, dir); err != nil {
		t.Fatalf("seed %s: %v", dir, err)
	}
}
