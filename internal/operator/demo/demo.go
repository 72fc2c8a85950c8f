// Package demo is a reference operator. It sums the work units 1..count
// (squared in thorough mode, scaled by level) split across the group, and
// reports the leader's share together with a checksum every rank agrees on.
package demo

import (
	"context"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"opgrid/internal/lifecycle"
	"opgrid/internal/logging"
)

// Name is the operator name descriptors use.
const Name = "demo"

const (
	paramCount    = "count"
	paramMode     = "mode"
	paramLevel    = "level"
	paramResource = "resource"
	paramFail     = "fail"
	paramFailRank = "fail_rank"

	modeFast     = "fast"
	modeThorough = "thorough"
)

// ErrInjected is returned by the phase named in the fail parameter.
var ErrInjected = errors.New("injected failure")

//go:embed schemas/*.yaml
var schemaFiles embed.FS

// Schemas returns the registry documents for the demo operator and the
// primitives it references.
func Schemas() fs.FS {
	sub, err := fs.Sub(schemaFiles, "schemas")
	if err != nil {
		panic(err)
	}
	return sub
}

// Operator implements lifecycle.Operator. It keeps no state between jobs;
// everything lives in the handle.
type Operator struct{}

// New returns a demo operator.
func New() *Operator {
	return &Operator{}
}

// Report is the leader's contribution to the result document.
type Report struct {
	Units         int                    `json:"units"`
	Mode          string                 `json:"mode"`
	Level         int64                  `json:"level"`
	Allocations   []lifecycle.Allocation `json:"allocations"`
	LeaderPartial int64                  `json:"leader_partial"`
	Checksum      int64                  `json:"checksum"`
	Resource      *uint64                `json:"resource,omitempty"`
}

type state struct {
	rc     *lifecycle.RankContext
	logger *slog.Logger

	count    int
	mode     string
	level    int64
	fail     string
	failRank int64

	alloc    lifecycle.Allocation
	table    []lifecycle.Allocation
	resource *lifecycle.LookupRecord
	partial  int64
	checksum int64
	released bool
}

func handle(h lifecycle.Handle) (*state, error) {
	st, ok := h.(*state)
	if !ok || st == nil {
		return nil, fmt.Errorf("demo: unexpected handle %T", h)
	}
	if st.released {
		return nil, errors.New("demo: handle already released")
	}
	return st, nil
}

func (st *state) inject(phase lifecycle.Phase) error {
	if st.fail != phase.String() {
		return nil
	}
	if st.failRank >= 0 && int64(st.rc.Rank) != st.failRank {
		return nil
	}
	return fmt.Errorf("%w in %s on rank %d", ErrInjected, phase, st.rc.Rank)
}

// EnvSet reads the resolved parameters into a fresh handle.
func (o *Operator) EnvSet(_ context.Context, rc *lifecycle.RankContext) (lifecycle.Handle, error) {
	count, err := rc.Params.Int(paramCount)
	if err != nil {
		return nil, err
	}
	st := &state{
		rc:       rc,
		logger:   rc.Logger,
		count:    int(count),
		mode:     rc.Params.String(paramMode),
		level:    1,
		fail:     rc.Params.String(paramFail),
		failRank: -1,
	}
	if st.logger == nil {
		st.logger = logging.NewNop()
	}
	if st.mode == "" {
		st.mode = modeFast
	}
	if rc.Params.Has(paramLevel) {
		if st.level, err = rc.Params.Int(paramLevel); err != nil {
			return nil, err
		}
	}
	if rc.Params.Has(paramFailRank) {
		if st.failRank, err = rc.Params.Int(paramFailRank); err != nil {
			return nil, err
		}
	}
	if err := st.inject(lifecycle.PhaseEnvSet); err != nil {
		return nil, err
	}
	return st, nil
}

// TaskInit computes this rank's allocation.
func (o *Operator) TaskInit(_ context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	if err := st.inject(lifecycle.PhaseTaskInit); err != nil {
		return err
	}
	st.alloc, err = st.rc.Allocate(st.count)
	if err != nil {
		return err
	}
	if st.rc.IsLeader() {
		if st.table, err = lifecycle.Partition(st.count, st.rc.Size); err != nil {
			return err
		}
	}
	st.logger.Debug("demo allocation",
		logging.Int("offset", st.alloc.Offset),
		logging.Int("count", st.alloc.Count),
	)
	return nil
}

// TaskDistribute resolves the optional resource on the leader and shares the
// verdict with every rank.
func (o *Operator) TaskDistribute(ctx context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	if err := st.inject(lifecycle.PhaseTaskDistribute); err != nil {
		return err
	}
	if !st.rc.Params.Has(paramResource) {
		return nil
	}
	id, err := st.rc.Params.Int(paramResource)
	if err != nil {
		return err
	}
	rec, err := st.rc.LeaderLookup(ctx, func(context.Context) (lifecycle.LookupRecord, error) {
		if id <= 0 {
			return lifecycle.LookupRecord{}, nil
		}
		return lifecycle.LookupRecord{ID: uint64(id), Aux: uint64(st.count)}, nil
	})
	if err != nil {
		return err
	}
	st.resource = &rec
	return nil
}

// TaskExecute sums the rank's units.
func (o *Operator) TaskExecute(ctx context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	if err := st.inject(lifecycle.PhaseTaskExecute); err != nil {
		return err
	}
	st.partial = 0
	for unit := st.alloc.Offset + 1; unit <= st.alloc.End(); unit++ {
		if st.mode == modeThorough {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		st.partial += st.value(unit)
	}
	return nil
}

func (st *state) value(unit int) int64 {
	v := int64(unit)
	if st.mode == modeThorough {
		v *= v
	}
	return v * st.level
}

// TaskReduce has the leader compute the checksum over all units and
// broadcast it so each rank can check its own partial against it.
func (o *Operator) TaskReduce(ctx context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	if err := st.inject(lifecycle.PhaseTaskReduce); err != nil {
		return err
	}
	var payload []byte
	if st.rc.IsLeader() {
		var total int64
		for unit := 1; unit <= st.count; unit++ {
			total += st.value(unit)
		}
		payload = binary.BigEndian.AppendUint64(nil, uint64(total))
	}
	shared, err := st.rc.Comm.Broadcast(ctx, payload)
	if err != nil {
		return fmt.Errorf("broadcast checksum: %w", err)
	}
	if len(shared) != 8 {
		return fmt.Errorf("checksum payload: want 8 bytes, got %d", len(shared))
	}
	st.checksum = int64(binary.BigEndian.Uint64(shared))
	if st.partial > st.checksum {
		return fmt.Errorf("partial %d exceeds checksum %d", st.partial, st.checksum)
	}
	return nil
}

// Result returns the leader's report.
func (o *Operator) Result(h lifecycle.Handle) (any, error) {
	st, err := handle(h)
	if err != nil {
		return nil, err
	}
	report := Report{
		Units:         st.count,
		Mode:          st.mode,
		Level:         st.level,
		Allocations:   st.table,
		LeaderPartial: st.partial,
		Checksum:      st.checksum,
	}
	if st.resource != nil {
		id := st.resource.ID
		report.Resource = &id
	}
	return report, nil
}

// TaskDestroy drops per-task data.
func (o *Operator) TaskDestroy(_ context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	if err := st.inject(lifecycle.PhaseTaskDestroy); err != nil {
		return err
	}
	st.table = nil
	st.resource = nil
	return nil
}

// EnvUnset releases the handle. The handle is released even when the
// injected failure fires.
func (o *Operator) EnvUnset(_ context.Context, h lifecycle.Handle) error {
	st, err := handle(h)
	if err != nil {
		return err
	}
	st.released = true
	return st.inject(lifecycle.PhaseEnvUnset)
}
