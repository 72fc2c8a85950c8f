package group

import (
	"context"
	"fmt"
	"sync"
)

// hub holds the shared collective state for one group. Waiters block on the
// current changed channel, which is closed and replaced on every mutation.
type hub struct {
	size int

	mu       sync.Mutex
	changed  chan struct{}
	payloads map[uint64][]byte
	fetched  map[uint64]int
	gen      uint64
	arrived  int
	joined   map[int]struct{}
	finished map[int]struct{}
	aborted  *AbortError
}

func newHub(size int) *hub {
	return &hub{
		size:     size,
		changed:  make(chan struct{}),
		payloads: make(map[uint64][]byte),
		fetched:  make(map[uint64]int),
		joined:   make(map[int]struct{}),
		finished: make(map[int]struct{}),
	}
}

func (h *hub) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// await blocks until ready reports true (evaluated under the lock), the group
// is aborted, or ctx ends. A rank that stops waiting aborts the group so that
// its peers are not left blocked.
func (h *hub) await(ctx context.Context, rank int, ready func() bool) error {
	for {
		h.mu.Lock()
		if ready() {
			h.mu.Unlock()
			return nil
		}
		if h.aborted != nil {
			err := h.aborted
			h.mu.Unlock()
			return err
		}
		ch := h.changed
		h.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return h.abort(rank, fmt.Sprintf("rank %d stopped waiting: %v", rank, ctx.Err()))
		}
	}
}

// abort records the first abort and wakes every waiter. It returns the
// effective abort, which may predate this call.
func (h *hub) abort(rank int, cause string) *AbortError {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted == nil {
		h.aborted = &AbortError{Rank: rank, Cause: cause}
		h.notifyLocked()
	}
	return h.aborted
}

// finish records that rank ended its lifecycle. Aborts do not block it.
func (h *hub) finish(rank int) error {
	if rank < 0 || rank >= h.size {
		return fmt.Errorf("rank %d out of range for group of %d", rank, h.size)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, done := h.finished[rank]; !done {
		h.finished[rank] = struct{}{}
		h.notifyLocked()
	}
	return nil
}

// waitFinished blocks until every rank finished. Unlike await it keeps
// waiting after an abort, since aborted ranks still check out.
func (h *hub) waitFinished(ctx context.Context) error {
	for {
		h.mu.Lock()
		pending := h.size - len(h.finished)
		ch := h.changed
		h.mu.Unlock()
		if pending == 0 {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("%d of %d ranks still running: %w", pending, h.size, ctx.Err())
		}
	}
}

func (h *hub) publish(seq uint64, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted != nil {
		return h.aborted
	}
	if h.size == 1 {
		return nil
	}
	h.payloads[seq] = append([]byte(nil), payload...)
	h.notifyLocked()
	return nil
}

func (h *hub) fetch(ctx context.Context, rank int, seq uint64) ([]byte, error) {
	var out []byte
	err := h.await(ctx, rank, func() bool {
		payload, ok := h.payloads[seq]
		if !ok {
			return false
		}
		out = append([]byte(nil), payload...)
		h.fetched[seq]++
		if h.fetched[seq] >= h.size-1 {
			delete(h.payloads, seq)
			delete(h.fetched, seq)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// arrive enters barrier generation gen and waits for the rest of the group.
func (h *hub) arrive(ctx context.Context, rank int, gen uint64) error {
	h.mu.Lock()
	switch {
	case h.aborted != nil:
		err := h.aborted
		h.mu.Unlock()
		return err
	case gen < h.gen:
		h.mu.Unlock()
		return nil
	case gen > h.gen:
		h.mu.Unlock()
		return h.abort(rank, fmt.Sprintf("rank %d entered barrier %d while group is at %d", rank, gen, h.gen))
	}
	h.arrived++
	if h.arrived == h.size {
		h.gen++
		h.arrived = 0
		h.notifyLocked()
	}
	h.mu.Unlock()

	return h.await(ctx, rank, func() bool { return h.gen > gen })
}

func (h *hub) join(rank, size int) error {
	if size != h.size {
		return fmt.Errorf("rank %d expects group size %d, coordinator has %d", rank, size, h.size)
	}
	if err := validatePlacement(rank, size); err != nil {
		return err
	}
	if rank == 0 {
		return fmt.Errorf("rank 0 is the coordinator and cannot join as a follower")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted != nil {
		return h.aborted
	}
	if _, dup := h.joined[rank]; dup {
		return fmt.Errorf("rank %d already joined", rank)
	}
	h.joined[rank] = struct{}{}
	h.notifyLocked()
	return nil
}

func (h *hub) waitJoined(ctx context.Context) error {
	return h.await(ctx, 0, func() bool { return len(h.joined) == h.size-1 })
}
