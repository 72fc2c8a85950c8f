package testsupport

import (
	"context"
	"testing"

	"opgrid/internal/config"
	"opgrid/internal/jobstore"
	"opgrid/internal/lifecycle"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob records a job in CREATED for tests using the provided store.
func NewJob(t testing.TB, store *jobstore.Store, id, descriptor string) *lifecycle.JobRecord {
	t.Helper()

	rec := &lifecycle.JobRecord{ID: id, Operator: "demo", Descriptor: descriptor, GroupSize: 1}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}

// Advance walks job id through statuses in order.
func Advance(t testing.TB, store *jobstore.Store, id string, statuses ...lifecycle.Status) {
	t.Helper()

	for _, status := range statuses {
		if err := store.Transition(context.Background(), id, status, ""); err != nil {
			t.Fatalf("store.Transition(%s): %v", status, err)
		}
	}
}
