package group

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Local is a communicator for goroutine ranks sharing one process.
type Local struct {
	hub    *hub
	rank   int
	seq    uint64
	gen    uint64
	closed atomic.Bool
}

// NewLocal returns size communicators connected to one in-process hub; the
// communicator at index i is rank i.
func NewLocal(size int) ([]*Local, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", size)
	}
	h := newHub(size)
	comms := make([]*Local, size)
	for rank := range comms {
		comms[rank] = &Local{hub: h, rank: rank}
	}
	return comms, nil
}

func (l *Local) Rank() int { return l.rank }

func (l *Local) Size() int { return l.hub.size }

func (l *Local) Broadcast(ctx context.Context, payload []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	seq := l.seq
	l.seq++
	if l.rank == 0 {
		if err := l.hub.publish(seq, payload); err != nil {
			return nil, err
		}
		return append([]byte(nil), payload...), nil
	}
	return l.hub.fetch(ctx, l.rank, seq)
}

func (l *Local) Barrier(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	gen := l.gen
	l.gen++
	return l.hub.arrive(ctx, l.rank, gen)
}

func (l *Local) Abort(cause error) {
	l.hub.abort(l.rank, causeText(cause))
}

func (l *Local) Finish(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.hub.finish(l.rank); err != nil {
		return err
	}
	if l.rank != 0 {
		return nil
	}
	return l.hub.waitFinished(ctx)
}

func (l *Local) Close() error {
	l.closed.Store(true)
	return nil
}
