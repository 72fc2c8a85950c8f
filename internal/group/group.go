package group

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAborted matches every AbortError.
	ErrAborted = errors.New("group aborted")
	// ErrClosed is returned by collectives on a closed communicator.
	ErrClosed = errors.New("communicator closed")
)

// Communicator is one rank's view of the group. A communicator is owned by a
// single goroutine; every rank must issue the same sequence of collectives.
type Communicator interface {
	Rank() int
	Size() int
	// Broadcast returns rank 0's payload on every rank. Followers pass nil.
	Broadcast(ctx context.Context, payload []byte) ([]byte, error)
	Barrier(ctx context.Context) error
	// Abort marks the group failed. It never blocks on other ranks.
	Abort(cause error)
	// Finish checks this rank out once its lifecycle ended, aborted or not.
	// On rank 0 it returns when every rank has checked out; followers return
	// once their check-out is recorded.
	Finish(ctx context.Context) error
	Close() error
}

// AbortError is returned from collectives once any rank aborted the group.
type AbortError struct {
	Rank  int
	Cause string
}

func (e *AbortError) Error() string {
	if e.Rank < 0 {
		return fmt.Sprintf("group aborted: %s", e.Cause)
	}
	return fmt.Sprintf("group aborted by rank %d: %s", e.Rank, e.Cause)
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

func causeText(cause error) string {
	if cause == nil {
		return "unspecified failure"
	}
	return cause.Error()
}

func validatePlacement(rank, size int) error {
	if size < 1 {
		return fmt.Errorf("group size must be at least 1, got %d", size)
	}
	if rank < 0 || rank >= size {
		return fmt.Errorf("rank %d out of range for group of %d", rank, size)
	}
	return nil
}
