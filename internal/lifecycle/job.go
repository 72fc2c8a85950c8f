package lifecycle

import (
	"context"
	"time"
)

// JobRecord is the leader's persisted view of a job.
type JobRecord struct {
	ID         string
	Session    string
	Marker     string
	Operator   string
	User       string
	Role       string
	Status     Status
	Descriptor string
	Error      string
	GroupSize  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HistoryEntry is one recorded status change.
type HistoryEntry struct {
	Status  Status
	Message string
	At      time.Time
}

// Store persists job records. Only the leader writes to it.
type Store interface {
	// Create records a new job in CREATED. Re-using an existing ID resets the
	// record and appends to its history.
	Create(ctx context.Context, rec *JobRecord) error
	Transition(ctx context.Context, id string, status Status, message string) error
}
