package lifecycle_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opgrid/internal/group"
	"opgrid/internal/lifecycle"
	"opgrid/internal/notifications"
	"opgrid/internal/operator/demo"
	"opgrid/internal/params"
	"opgrid/internal/schema"
	"opgrid/internal/services"
)

type fakeStore struct {
	mu          sync.Mutex
	created     []lifecycle.JobRecord
	transitions []lifecycle.Status
	messages    []string
	failCreate  error
	failUpdates error
}

func (s *fakeStore) Create(_ context.Context, rec *lifecycle.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	s.created = append(s.created, *rec)
	return nil
}

func (s *fakeStore) Transition(_ context.Context, _ string, status lifecycle.Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates != nil {
		return s.failUpdates
	}
	s.transitions = append(s.transitions, status)
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeStore) last() lifecycle.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions[len(s.transitions)-1]
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notifications.Message
}

func (n *fakeNotifier) Publish(_ context.Context, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

// countingOperator records calls and can fail one phase on one rank.
type countingOperator struct {
	failPhase lifecycle.Phase
	failRank  int
	fail      bool

	envSet   atomic.Int32
	envUnset atomic.Int32
	calls    sync.Map
}

type countingHandle struct {
	rank int
}

func (o *countingOperator) step(phase lifecycle.Phase, rank int) error {
	v, _ := o.calls.LoadOrStore(phase, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
	if o.fail && o.failPhase == phase && o.failRank == rank {
		return errors.New("boom")
	}
	return nil
}

func (o *countingOperator) count(phase lifecycle.Phase) int {
	v, ok := o.calls.Load(phase)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func (o *countingOperator) EnvSet(_ context.Context, rc *lifecycle.RankContext) (lifecycle.Handle, error) {
	o.envSet.Add(1)
	if err := o.step(lifecycle.PhaseEnvSet, rc.Rank); err != nil {
		return nil, err
	}
	return &countingHandle{rank: rc.Rank}, nil
}

func (o *countingOperator) rank(h lifecycle.Handle) int {
	return h.(*countingHandle).rank
}

func (o *countingOperator) TaskInit(_ context.Context, h lifecycle.Handle) error {
	return o.step(lifecycle.PhaseTaskInit, o.rank(h))
}

func (o *countingOperator) TaskDistribute(_ context.Context, h lifecycle.Handle) error {
	return o.step(lifecycle.PhaseTaskDistribute, o.rank(h))
}

func (o *countingOperator) TaskExecute(_ context.Context, h lifecycle.Handle) error {
	return o.step(lifecycle.PhaseTaskExecute, o.rank(h))
}

func (o *countingOperator) TaskReduce(_ context.Context, h lifecycle.Handle) error {
	return o.step(lifecycle.PhaseTaskReduce, o.rank(h))
}

func (o *countingOperator) TaskDestroy(_ context.Context, h lifecycle.Handle) error {
	return o.step(lifecycle.PhaseTaskDestroy, o.rank(h))
}

func (o *countingOperator) EnvUnset(_ context.Context, h lifecycle.Handle) error {
	o.envUnset.Add(1)
	return o.step(lifecycle.PhaseEnvUnset, o.rank(h))
}

type rankResult struct {
	out lifecycle.Outcome
	err error
}

func prepare(t *testing.T, raw string) lifecycle.Submission {
	t.Helper()
	sub, err := lifecycle.Prepare(context.Background(), raw, schema.New(demo.Schemas()), lifecycle.PrepareOptions{})
	require.NoError(t, err)
	return sub
}

// runGroup runs one Orchestrator per rank over a local group. Options are
// applied to the leader only.
func runGroup(t *testing.T, size int, sub lifecycle.Submission, newOp func() lifecycle.Operator, leaderOpts ...lifecycle.Option) []rankResult {
	t.Helper()
	comms, err := group.NewLocal(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := make([]rankResult, size)
	var wg sync.WaitGroup
	for rank, comm := range comms {
		var opts []lifecycle.Option
		if rank == 0 {
			opts = leaderOpts
		}
		orch := lifecycle.New(comm, opts...)
		op := newOp()
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := orch.Run(ctx, sub, op)
			results[rank] = rankResult{out: out, err: err}
		}()
	}
	wg.Wait()
	return results
}

func fullPath() []lifecycle.Status {
	path := []lifecycle.Status{lifecycle.StatusCreated, lifecycle.StatusRunning}
	for _, phase := range lifecycle.Phases() {
		path = append(path, phase.Status())
	}
	return append(path, lifecycle.StatusCompleted)
}

func TestRunDemoCompletesOnEveryRank(t *testing.T) {
	sub := prepare(t, "op=demo;count=4;session=s1;marker=m1")
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	resultDir := t.TempDir()

	results := runGroup(t, 3, sub, func() lifecycle.Operator { return demo.New() },
		lifecycle.WithStore(store),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithResultDir(resultDir),
		lifecycle.WithLockDir(t.TempDir()),
	)

	jobID := results[0].out.JobID
	require.NotEmpty(t, jobID)
	for rank, res := range results {
		require.NoError(t, res.err, "rank %d", rank)
		assert.Equal(t, jobID, res.out.JobID, "rank %d", rank)
		assert.Equal(t, lifecycle.StatusCompleted, res.out.Status, "rank %d", rank)
		assert.Equal(t, fullPath(), res.out.Path, "rank %d", rank)
	}

	report, ok := results[0].out.Result.(demo.Report)
	require.True(t, ok)
	// level is fixed at 2: (1+2+3+4)*2 overall, (1+2)*2 on the leader.
	assert.Equal(t, int64(20), report.Checksum)
	assert.Equal(t, int64(6), report.LeaderPartial)
	assert.Len(t, report.Allocations, 3)
	assert.Nil(t, results[1].out.Result)

	require.Len(t, store.created, 1)
	assert.Equal(t, "s1", store.created[0].Session)
	assert.Equal(t, 3, store.created[0].GroupSize)
	assert.Equal(t, fullPath()[1:], store.transitions)

	require.Len(t, notifier.messages, 1)
	assert.False(t, notifier.messages[0].Failed())
	assert.Equal(t, "COMPLETED", notifier.messages[0].StatusLabel)

	require.Equal(t, lifecycle.ResultPath(resultDir, jobID), results[0].out.ResultPath)
	data, err := os.ReadFile(results[0].out.ResultPath)
	require.NoError(t, err)
	var doc lifecycle.ResultDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "COMPLETED", doc.Status)
	assert.Equal(t, 16, doc.StatusCode)
	assert.Equal(t, []string{"4"}, doc.Parameters["count"])
	assert.Equal(t, []string{"2"}, doc.Parameters["level"])
	assert.Equal(t, "1.0", doc.SchemaVersion)
	assert.Empty(t, doc.FailedPhase)
}

func TestLeaderRejectionFailsEveryRankInDistribute(t *testing.T) {
	sub := prepare(t, "op=demo;count=3;resource=0")
	store := &fakeStore{}

	results := runGroup(t, 3, sub, func() lifecycle.Operator { return demo.New() }, lifecycle.WithStore(store))

	for rank, res := range results {
		require.Error(t, res.err, "rank %d", rank)
		assert.ErrorIs(t, res.err, lifecycle.ErrLeaderRejected, "rank %d", rank)
		assert.Equal(t, lifecycle.StatusDistributeError, res.out.Status, "rank %d", rank)
		var pe *lifecycle.PhaseError
		require.ErrorAs(t, res.err, &pe)
		assert.Equal(t, lifecycle.PhaseTaskDistribute, pe.Phase)
	}
	assert.Equal(t, lifecycle.StatusDistributeError, store.last())
}

func TestLeaderLookupSharesRecord(t *testing.T) {
	sub := prepare(t, "op=demo;count=2;resource=42")
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return demo.New() })

	for _, res := range results {
		require.NoError(t, res.err)
	}
	report := results[0].out.Result.(demo.Report)
	require.NotNil(t, report.Resource)
	assert.Equal(t, uint64(42), *report.Resource)
}

func TestEnvUnsetRunsOnceOnSuccess(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &countingOperator{}
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return op })

	for _, res := range results {
		require.NoError(t, res.err)
	}
	assert.Equal(t, int32(2), op.envSet.Load())
	assert.Equal(t, int32(2), op.envUnset.Load())
}

func TestFailureAbortsGroupAndStillReleases(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &countingOperator{fail: true, failPhase: lifecycle.PhaseTaskExecute, failRank: 1}
	resultDir := t.TempDir()
	notifier := &fakeNotifier{}

	results := runGroup(t, 3, sub, func() lifecycle.Operator { return op },
		lifecycle.WithResultDir(resultDir),
		lifecycle.WithNotifier(notifier),
	)

	for rank, res := range results {
		require.Error(t, res.err, "rank %d", rank)
		assert.Equal(t, lifecycle.StatusExecuteError, res.out.Status, "rank %d", rank)
	}
	var pe *lifecycle.PhaseError
	require.ErrorAs(t, results[1].err, &pe)
	assert.False(t, pe.Remote())
	require.ErrorAs(t, results[0].err, &pe)
	assert.True(t, pe.Remote())
	assert.ErrorIs(t, results[0].err, group.ErrAborted)

	assert.Equal(t, int32(3), op.envUnset.Load(), "env_unset runs once per rank")
	assert.Zero(t, op.count(lifecycle.PhaseTaskReduce))

	data, err := os.ReadFile(lifecycle.ResultPath(resultDir, results[0].out.JobID))
	require.NoError(t, err)
	var doc lifecycle.ResultDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "EXECUTE_ERROR", doc.Status)
	assert.Equal(t, "task_execute", doc.FailedPhase)
	require.NotNil(t, doc.FailedRank)
	assert.Equal(t, 1, *doc.FailedRank)

	require.Len(t, notifier.messages, 1)
	assert.True(t, notifier.messages[0].Failed())
}

// lingeringOperator holds followers in task_execute so they finish after the
// leader's own lifecycle ended.
type lingeringOperator struct {
	countingOperator
	delay time.Duration
}

func (o *lingeringOperator) TaskExecute(ctx context.Context, h lifecycle.Handle) error {
	if o.rank(h) != 0 {
		time.Sleep(o.delay)
	}
	return o.countingOperator.TaskExecute(ctx, h)
}

type publishFunc func(context.Context, notifications.Message) error

func (f publishFunc) Publish(ctx context.Context, msg notifications.Message) error {
	return f(ctx, msg)
}

func TestLeaderReportsAfterEveryRankFinished(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &lingeringOperator{
		countingOperator: countingOperator{fail: true, failPhase: lifecycle.PhaseTaskInit, failRank: 0},
		delay:            300 * time.Millisecond,
	}
	var releasedAtPublish atomic.Int32
	notifier := publishFunc(func(context.Context, notifications.Message) error {
		releasedAtPublish.Store(op.envUnset.Load())
		return nil
	})

	results := runGroup(t, 2, sub, func() lifecycle.Operator { return op }, lifecycle.WithNotifier(notifier))

	assert.Equal(t, lifecycle.StatusInitError, results[0].out.Status)
	assert.Equal(t, lifecycle.StatusExecuteError, results[1].out.Status)
	var aborted *group.AbortError
	require.ErrorAs(t, results[1].err, &aborted)
	assert.Equal(t, 0, aborted.Rank)
	assert.Contains(t, aborted.Cause, "task_init")
	assert.Equal(t, int32(2), releasedAtPublish.Load(), "both ranks released before the failure was announced")
}

func TestDrainTimeoutStillReports(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &lingeringOperator{
		countingOperator: countingOperator{fail: true, failPhase: lifecycle.PhaseTaskInit, failRank: 0},
		delay:            time.Second,
	}
	var releasedAtPublish atomic.Int32
	notifier := publishFunc(func(context.Context, notifications.Message) error {
		releasedAtPublish.Store(op.envUnset.Load())
		return nil
	})

	results := runGroup(t, 2, sub, func() lifecycle.Operator { return op },
		lifecycle.WithNotifier(notifier),
		lifecycle.WithDrainTimeout(50*time.Millisecond),
	)

	assert.Equal(t, lifecycle.StatusInitError, results[0].out.Status)
	assert.Equal(t, int32(1), releasedAtPublish.Load(), "the leader stops waiting for the lagging rank")
	assert.Equal(t, int32(2), op.envUnset.Load())
}

func TestEnvSetFailureSkipsRelease(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &countingOperator{fail: true, failPhase: lifecycle.PhaseEnvSet, failRank: 0}
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return op })

	assert.Equal(t, lifecycle.StatusSetEnvError, results[0].out.Status)
	// rank 1 holds a handle and first meets the abort at the execute rendezvous.
	assert.Equal(t, lifecycle.StatusExecuteError, results[1].out.Status)
	assert.Equal(t, int32(1), op.envUnset.Load())
}

func TestEnvUnsetFailureIsTerminal(t *testing.T) {
	sub := prepare(t, "op=demo;count=1")
	op := &countingOperator{fail: true, failPhase: lifecycle.PhaseEnvUnset, failRank: 0}
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return op })

	assert.Equal(t, lifecycle.StatusUnsetEnvError, results[0].out.Status)
	assert.Equal(t, lifecycle.StatusUnsetEnvError, results[1].out.Status)
	assert.Equal(t, int32(2), op.envUnset.Load())
}

func TestInjectedDemoFailureNamesPhase(t *testing.T) {
	sub := prepare(t, "op=demo;count=5;fail=task_init;fail_rank=1")
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return demo.New() })

	assert.ErrorIs(t, results[1].err, demo.ErrInjected)
	assert.Equal(t, lifecycle.StatusInitError, results[1].out.Status)
	assert.Equal(t, lifecycle.StatusExecuteError, results[0].out.Status)
}

func TestStoreFailuresDoNotChangeOutcome(t *testing.T) {
	sub := prepare(t, "op=demo;count=2")
	store := &fakeStore{failUpdates: errors.New("disk full")}
	results := runGroup(t, 1, sub, func() lifecycle.Operator { return demo.New() }, lifecycle.WithStore(store))

	require.NoError(t, results[0].err)
	assert.Equal(t, lifecycle.StatusCompleted, results[0].out.Status)
}

func TestStoreCreateFailureAbortsStart(t *testing.T) {
	sub := prepare(t, "op=demo;count=2")
	store := &fakeStore{failCreate: errors.New("read-only")}
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return demo.New() }, lifecycle.WithStore(store))

	require.Error(t, results[0].err)
	require.Error(t, results[1].err)
	assert.ErrorIs(t, results[1].err, group.ErrAborted)
	assert.Equal(t, lifecycle.StatusCreated, results[1].out.Status)
}

func TestJobLockConflict(t *testing.T) {
	lockDir := t.TempDir()
	held := flock.New(filepath.Join(lockDir, "job-7.lock"))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	sub := prepare(t, "op=demo;count=2;jobid=job-7")
	results := runGroup(t, 1, sub, func() lifecycle.Operator { return demo.New() }, lifecycle.WithLockDir(lockDir))

	assert.ErrorIs(t, results[0].err, lifecycle.ErrJobLocked)
	assert.Equal(t, "job-7", results[0].out.JobID)
}

func TestInvalidJobIDRejected(t *testing.T) {
	sub := prepare(t, "op=demo;count=2;jobid=../x")
	results := runGroup(t, 1, sub, func() lifecycle.Operator { return demo.New() })
	assert.ErrorIs(t, results[0].err, services.ErrValidation)
}

func TestNilOperatorAbortsGroup(t *testing.T) {
	sub := prepare(t, "op=demo;count=2")
	results := runGroup(t, 2, sub, func() lifecycle.Operator { return nil })
	assert.Error(t, results[0].err)
	assert.Error(t, results[1].err)
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	reg := schema.New(demo.Schemas())

	_, err := lifecycle.Prepare(ctx, "count=1", reg, lifecycle.PrepareOptions{})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = lifecycle.Prepare(ctx, "op=nosuch;count=1", reg, lifecycle.PrepareOptions{})
	assert.ErrorIs(t, err, schema.ErrSchemaNotFound)

	_, err = lifecycle.Prepare(ctx, "op=demo", reg, lifecycle.PrepareOptions{})
	assert.ErrorIs(t, err, params.ErrMissingParameter)

	_, err = lifecycle.Prepare(ctx, "op=demo;count=11", reg, lifecycle.PrepareOptions{})
	assert.ErrorIs(t, err, params.ErrInvalidValue)

	_, err = lifecycle.Prepare(ctx, "op=demo;count=1;mode=slow", reg, lifecycle.PrepareOptions{})
	assert.ErrorIs(t, err, params.ErrInvalidValue)

	version := "1.0"
	sub, err := lifecycle.Prepare(ctx, "op=DEMO;count=3;level=7", reg, lifecycle.PrepareOptions{Version: &version})
	require.NoError(t, err)
	assert.Equal(t, "DEMO", sub.Operator())
	assert.Equal(t, "2", sub.Params.String("level"))
	assert.Equal(t, "fast", sub.Params.String("mode"))
	require.Len(t, sub.Params.Warnings(), 1)
	assert.Equal(t, "level", sub.Params.Warnings()[0].Parameter)
	assert.False(t, sub.Params.Has("resource"))
}
