package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"opgrid/internal/group"
	"opgrid/internal/logging"
	"opgrid/internal/metrics"
	"opgrid/internal/notifications"
	"opgrid/internal/services"
)

// ErrJobLocked is returned on the leader when another group holds the job.
var ErrJobLocked = errors.New("job is already running")

// Orchestrator drives one rank of a job through the lifecycle. Every rank
// of the group runs its own Orchestrator over its own communicator.
type Orchestrator struct {
	comm      group.Communicator
	store     Store
	notifier  notifications.Service
	metrics   *metrics.Collector
	logger    *slog.Logger
	lockDir   string
	resultDir string
	drain     time.Duration
	now       func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the job store. Only the leader uses it.
func WithStore(store Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithNotifier sets the notification service. Only the leader uses it.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = collector }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithLockDir makes the leader hold <dir>/<job id>.lock while it runs.
func WithLockDir(dir string) Option {
	return func(o *Orchestrator) { o.lockDir = dir }
}

// WithResultDir makes the leader write <dir>/<job id>.json when the job ends.
func WithResultDir(dir string) Option {
	return func(o *Orchestrator) { o.resultDir = dir }
}

// WithDrainTimeout bounds how long the leader waits for every rank to end its
// lifecycle before reporting. Zero waits until ctx ends.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.drain = d }
}

// New builds an Orchestrator for the rank behind comm.
func New(comm group.Communicator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		comm:  comm,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "lifecycle")
	return o
}

// Outcome summarizes how the job ended on this rank.
type Outcome struct {
	JobID  string
	Status Status
	// Path lists every status this rank entered, in order.
	Path []Status
	// Result is the operator's contribution; leader only.
	Result any
	// ResultPath is the written result document; leader only.
	ResultPath string
}

// run is the per-job state of one Run call.
type run struct {
	o       *Orchestrator
	sub     Submission
	rc      *RankContext
	machine *Machine
	logger  *slog.Logger
	started time.Time
	failure *PhaseError
	result  any
}

// Run executes sub with op on this rank. It returns a *PhaseError when any
// phase failed on this rank, and a plain error when the job could not start.
// Every rank checks out of the group before Run returns; the leader reports
// the job only after all ranks have.
func (o *Orchestrator) Run(ctx context.Context, sub Submission, op Operator) (Outcome, error) {
	if op == nil {
		err := fmt.Errorf("operator %q unavailable", sub.Operator())
		o.comm.Abort(err)
		o.finish(ctx, o.logger)
		return Outcome{}, err
	}
	rank, size := o.comm.Rank(), o.comm.Size()
	started := o.now()

	jobID, release, err := o.start(ctx, sub)
	if err != nil {
		o.finish(ctx, o.logger)
		return Outcome{JobID: jobID}, err
	}
	defer release()

	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithRank(ctx, rank)
	ctx = services.WithOperator(ctx, sub.Operator())
	ctx = services.WithRequestID(ctx, sub.Descriptor.Session())
	logger := logging.WithContext(ctx, o.logger)

	d := sub.Descriptor
	r := &run{
		o:   o,
		sub: sub,
		rc: &RankContext{
			Rank:       rank,
			Size:       size,
			JobID:      jobID,
			Operator:   d.Operator(),
			Session:    d.Session(),
			Marker:     d.Marker(),
			User:       d.User(),
			Role:       d.Role(),
			Descriptor: d,
			Params:     sub.Params,
			Logger:     logger,
			Comm:       o.comm,
			metrics:    o.metrics,
		},
		machine: NewMachine(),
		logger:  logger,
		started: started,
	}

	o.metrics.JobStarted()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("group_size", size),
		logging.Int("parameters", sub.Params.Len()),
	)
	r.advance(ctx, StatusRunning, "")
	r.lifecycle(ctx, op)

	out := Outcome{JobID: jobID, Status: r.machine.Current(), Path: r.machine.Path()}
	o.metrics.JobFinished(out.Status.String())
	o.finish(ctx, logger)
	if r.rc.IsLeader() {
		out.Result = r.result
		out.ResultPath = r.report(ctx)
	}

	if r.failure != nil {
		return out, r.failure
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("elapsed", o.now().Sub(started)),
	)
	return out, nil
}

// finish checks this rank out of the group. On the leader it blocks until
// every rank has checked out or the drain timeout expires.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger) {
	if o.drain > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.drain)
		defer cancel()
	}
	if err := o.comm.Finish(ctx); err != nil {
		logging.WarnWithContext(logger, "group did not finish cleanly", "group_drain_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the job is reported while some ranks may still be running"),
			logging.String(logging.FieldErrorHint, "check the lagging ranks' logs or raise group.drain_timeout"),
		)
	}
}

// start agrees on the job identity. The leader picks the ID, takes the job
// lock and creates the record, then broadcasts the ID; a leader failure
// aborts the group so followers do not wait.
func (o *Orchestrator) start(ctx context.Context, sub Submission) (string, func(), error) {
	release := func() {}
	var payload []byte
	if o.comm.Rank() == 0 {
		jobID := sub.Descriptor.JobID()
		if jobID == "" {
			jobID = o.newID()
		}
		unlock, err := o.setup(ctx, jobID, sub)
		if err != nil {
			o.comm.Abort(fmt.Errorf("job setup: %w", err))
			return jobID, release, err
		}
		release = unlock
		payload = []byte(jobID)
	}

	shared, err := o.comm.Broadcast(ctx, payload)
	if err != nil {
		release()
		return "", func() {}, fmt.Errorf("job start: %w", err)
	}
	return string(shared), release, nil
}

func (o *Orchestrator) setup(ctx context.Context, jobID string, sub Submission) (func(), error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	unlock, err := o.lock(jobID)
	if err != nil {
		return nil, err
	}
	if o.store != nil {
		d := sub.Descriptor
		now := o.now().UTC()
		rec := &JobRecord{
			ID:         jobID,
			Session:    d.Session(),
			Marker:     d.Marker(),
			Operator:   d.Operator(),
			User:       d.User(),
			Role:       d.Role(),
			Status:     StatusCreated,
			Descriptor: d.String(),
			GroupSize:  o.comm.Size(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := o.store.Create(ctx, rec); err != nil {
			unlock()
			return nil, fmt.Errorf("create job record: %w", err)
		}
	}
	return unlock, nil
}

func (o *Orchestrator) lock(jobID string) (func(), error) {
	if o.lockDir == "" {
		return func() {}, nil
	}
	fl := flock.New(filepath.Join(o.lockDir, jobID+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, jobID)
	}
	return func() { _ = fl.Unlock() }, nil
}

func validateJobID(id string) error {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.TrimSpace(id) != id {
		return services.Wrap(services.ErrValidation, "lifecycle", "start", fmt.Sprintf("invalid job id %q", id), nil)
	}
	return nil
}

// lifecycle runs the seven phases. env_unset runs exactly once whenever
// env_set returned a handle, even after a failure.
func (r *run) lifecycle(ctx context.Context, op Operator) {
	var (
		handle     Handle
		haveHandle bool
	)
	reporter, _ := op.(ResultReporter)

	steps := []struct {
		phase Phase
		call  func(context.Context) error
	}{
		{PhaseEnvSet, func(ctx context.Context) error {
			h, err := op.EnvSet(ctx, r.rc)
			if err == nil {
				handle, haveHandle = h, true
			}
			return err
		}},
		{PhaseTaskInit, func(ctx context.Context) error { return op.TaskInit(ctx, handle) }},
		{PhaseTaskDistribute, func(ctx context.Context) error { return op.TaskDistribute(ctx, handle) }},
		{PhaseTaskExecute, func(ctx context.Context) error {
			if err := op.TaskExecute(ctx, handle); err != nil {
				return err
			}
			if err := r.rc.Comm.Barrier(ctx); err != nil {
				return fmt.Errorf("execute rendezvous: %w", err)
			}
			return nil
		}},
		{PhaseTaskReduce, func(ctx context.Context) error {
			if err := op.TaskReduce(ctx, handle); err != nil {
				return err
			}
			if reporter != nil && r.rc.IsLeader() {
				result, err := reporter.Result(handle)
				if err != nil {
					return fmt.Errorf("collect result: %w", err)
				}
				r.result = result
			}
			return nil
		}},
		{PhaseTaskDestroy, func(ctx context.Context) error { return op.TaskDestroy(ctx, handle) }},
		{PhaseEnvUnset, func(ctx context.Context) error {
			haveHandle = false
			if err := op.EnvUnset(ctx, handle); err != nil {
				return err
			}
			if err := r.rc.Comm.Barrier(ctx); err != nil {
				return fmt.Errorf("completion rendezvous: %w", err)
			}
			return nil
		}},
	}

	for _, step := range steps {
		if err := r.phase(ctx, step.phase, step.call); err != nil {
			break
		}
	}

	if haveHandle {
		if err := op.EnvUnset(services.WithPhase(ctx, PhaseEnvUnset.String()), handle); err != nil {
			logging.WarnWithContext(r.logger, "env_unset failed after earlier failure", "env_unset_cleanup_failed",
				logging.Phase(PhaseEnvUnset.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the earlier phase error is kept"),
				logging.String(logging.FieldErrorHint, "check the operator's release logic"),
			)
		}
	}

	if r.failure == nil {
		r.advance(ctx, StatusCompleted, "")
	}
}

// phase runs one lifecycle step and records its outcome.
func (r *run) phase(ctx context.Context, phase Phase, call func(context.Context) error) error {
	ctx = services.WithPhase(ctx, phase.String())
	logger := logging.WithContext(ctx, r.o.logger)
	r.advance(ctx, phase.Status(), "")

	logger.Debug("phase started", logging.String(logging.FieldEventType, "phase_start"))
	begin := r.o.now()
	err := call(ctx)
	elapsed := r.o.now().Sub(begin)
	r.o.metrics.ObservePhase(phase.String(), elapsed, err)

	if err == nil {
		logger.Debug("phase completed",
			logging.String(logging.FieldEventType, "phase_complete"),
			logging.Duration("phase_duration", elapsed),
		)
		return nil
	}

	r.failure = &PhaseError{Phase: phase, Rank: r.rc.Rank, Err: err}
	if !r.failure.Remote() {
		r.rc.Comm.Abort(abortCause(phase, err))
	}
	logging.ErrorWithContext(logger, "phase failed", "phase_failure",
		logging.String("resolved_status", phase.ErrorStatus().String()),
		logging.Bool("remote", r.failure.Remote()),
		logging.Error(err),
	)
	r.advance(ctx, phase.ErrorStatus(), err.Error())
	return err
}

// advance moves the local state machine and, on the leader, persists the
// transition. Persistence failures are logged and do not change the job
// outcome.
func (r *run) advance(ctx context.Context, to Status, message string) {
	if err := r.machine.Transition(to); err != nil {
		r.logger.Error("illegal status transition", logging.Error(err))
		return
	}
	if !r.rc.IsLeader() || r.o.store == nil {
		return
	}
	if err := r.o.store.Transition(ctx, r.rc.JobID, to, message); err != nil {
		logging.ErrorWithContext(r.logger, "persist status transition failed", "status_persist_failed",
			logging.String("status", to.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory and job store"),
		)
	}
}

// report builds the result document, writes it and sends the notification.
// Leader only; every rank has already checked out.
func (r *run) report(ctx context.Context) string {
	status := r.machine.Current()
	doc := buildResultDocument(r.sub, r.rc.JobID, r.rc.Size, status, r.failure, r.result, r.started, r.o.now())

	var path string
	if r.o.resultDir != "" {
		written, err := writeResultDocument(r.o.resultDir, doc)
		if err != nil {
			logging.ErrorWithContext(r.logger, "result document not written", "result_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the results directory permissions"),
			)
		} else {
			path = written
		}
	}

	if r.o.notifier == nil {
		return path
	}
	payload, err := doc.Encode()
	if err != nil {
		r.logger.Error("result document encoding failed", logging.Error(err))
	}
	msg := notifications.Message{
		Status:      int(status),
		StatusLabel: status.String(),
		JobID:       r.rc.JobID,
		Session:     r.rc.Session,
		Marker:      r.rc.Marker,
		Operator:    r.rc.Operator,
		Phase:       doc.FailedPhase,
		Error:       doc.Error,
		Payload:     payload,
		ContentType: "application/json",
	}
	if err := r.o.notifier.Publish(ctx, msg); err != nil {
		logging.WarnWithContext(r.logger, "job notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "subscribers were not told about this job"),
			logging.String(logging.FieldErrorHint, "check notifications.endpoint"),
		)
	}
	return path
}
