package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"opgrid/internal/descriptor"
	"opgrid/internal/group"
	"opgrid/internal/metrics"
	"opgrid/internal/params"
)

// Phase is one of the seven fixed operator operations.
type Phase int

const (
	PhaseEnvSet Phase = iota
	PhaseTaskInit
	PhaseTaskDistribute
	PhaseTaskExecute
	PhaseTaskReduce
	PhaseTaskDestroy
	PhaseEnvUnset
)

var phaseNames = [...]string{
	PhaseEnvSet:         "env_set",
	PhaseTaskInit:       "task_init",
	PhaseTaskDistribute: "task_distribute",
	PhaseTaskExecute:    "task_execute",
	PhaseTaskReduce:     "task_reduce",
	PhaseTaskDestroy:    "task_destroy",
	PhaseEnvUnset:       "env_unset",
}

// Phases lists the phases in execution order.
func Phases() []Phase {
	return []Phase{PhaseEnvSet, PhaseTaskInit, PhaseTaskDistribute, PhaseTaskExecute, PhaseTaskReduce, PhaseTaskDestroy, PhaseEnvUnset}
}

func (p Phase) String() string {
	if p >= PhaseEnvSet && p <= PhaseEnvUnset {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status returns the running status entered when p starts.
func (p Phase) Status() Status {
	return StatusSetEnv + Status(p)
}

// ErrorStatus returns the terminal status entered when p fails.
func (p Phase) ErrorStatus() Status {
	return StatusSetEnvError + Status(p)
}

// Handle is the opaque per-rank state an operator returns from EnvSet. It is
// owned by the rank that created it and released exactly once by EnvUnset.
type Handle any

// Operator is a pluggable unit of work. Every rank calls the seven
// operations in order; a failing operation ends the job on that rank.
type Operator interface {
	EnvSet(ctx context.Context, rc *RankContext) (Handle, error)
	TaskInit(ctx context.Context, h Handle) error
	TaskDistribute(ctx context.Context, h Handle) error
	TaskExecute(ctx context.Context, h Handle) error
	TaskReduce(ctx context.Context, h Handle) error
	TaskDestroy(ctx context.Context, h Handle) error
	EnvUnset(ctx context.Context, h Handle) error
}

// ResultReporter is implemented by operators that contribute a result to the
// leader's result document. Result is called on the leader after TaskReduce
// succeeds and before TaskDestroy.
type ResultReporter interface {
	Result(h Handle) (any, error)
}

// RankContext is everything one rank knows about the job it is running.
type RankContext struct {
	Rank     int
	Size     int
	JobID    string
	Operator string
	Session  string
	Marker   string
	User     string
	Role     string

	Descriptor descriptor.Descriptor
	Params     params.Resolved
	Logger     *slog.Logger
	Comm       group.Communicator

	metrics *metrics.Collector
}

// IsLeader reports whether this rank is the leader.
func (rc *RankContext) IsLeader() bool {
	return rc.Rank == 0
}

// Allocate returns this rank's share of total work units.
func (rc *RankContext) Allocate(total int) (Allocation, error) {
	return AllocationFor(total, rc.Rank, rc.Size)
}

// LeaderLookup runs lookup on the leader only and shares the outcome with
// every rank. See LeaderLookup.
func (rc *RankContext) LeaderLookup(ctx context.Context, lookup LookupFunc) (LookupRecord, error) {
	return leaderLookup(ctx, rc, lookup)
}
