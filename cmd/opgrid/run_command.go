package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"opgrid/internal/config"
	"opgrid/internal/group"
	"opgrid/internal/jobstore"
	"opgrid/internal/lifecycle"
	"opgrid/internal/logging"
	"opgrid/internal/metrics"
	"opgrid/internal/notifications"
	"opgrid/internal/preflight"
)

const interruptExitCode = 130

type runOptions struct {
	local         int
	rank          int
	size          int
	coordinator   string
	schemaVersion string
	skipPreflight bool
	jsonOutput    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <descriptor>",
		Short: "Run an operator descriptor as one rank of a group",
		Long: `Run validates the descriptor against its operator schema and drives the
operator through its lifecycle.

With --local N every rank runs as a goroutine of this process. Otherwise this
process is one rank: rank 0 serves the coordinator and waits for the other
ranks, which dial it. Placement comes from the [group] config section, the
OPGRID_RANK/OPGRID_SIZE/OPGRID_COORDINATOR environment, or the flags below.`,
		Example: `  opgrid run 'op=demo;count=8' --local 4
  opgrid run 'op=demo;count=8;mode=thorough' --rank 1 --size 2 --coordinator 10.0.0.5:7611`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			placement := cfg.Group
			if cmd.Flags().Changed("rank") {
				placement.Rank = opts.rank
			}
			if cmd.Flags().Changed("size") {
				placement.Size = opts.size
			}
			if cmd.Flags().Changed("coordinator") {
				placement.Coordinator = opts.coordinator
			}
			if opts.local > 0 {
				placement.Rank = 0
				placement.Size = opts.local
			}
			if placement.Size < 1 {
				return fmt.Errorf("group size must be at least 1, got %d", placement.Size)
			}
			if placement.Rank < 0 || placement.Rank >= placement.Size {
				return fmt.Errorf("rank %d out of range for group of %d", placement.Rank, placement.Size)
			}
			return runDescriptor(cmd, ctx, cfg, placement, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.local, "local", 0, "Run N ranks as goroutines of this process")
	cmd.Flags().IntVar(&opts.rank, "rank", 0, "Rank of this process (overrides config)")
	cmd.Flags().IntVar(&opts.size, "size", 1, "Group size (overrides config)")
	cmd.Flags().StringVar(&opts.coordinator, "coordinator", "", "Coordinator address served by rank 0")
	cmd.Flags().StringVar(&opts.schemaVersion, "schema-version", "", "Pin the operator schema version instead of using the latest")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip the leader's environment checks")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the leader's outcome as JSON")
	cmd.MarkFlagsMutuallyExclusive("local", "rank")
	cmd.MarkFlagsMutuallyExclusive("local", "size")

	return cmd
}

type rankResult struct {
	outcome lifecycle.Outcome
	err     error
}

func runDescriptor(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, placement config.Group, opts runOptions, raw string) error {
	logger, err := logging.NewFromConfig(cfg, placement.Rank)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	stop := exitOnSignal(logger, ctx.exit)
	defer stop()

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	registry, err := ctx.schemaRegistry(logger)
	if err != nil {
		return err
	}
	var version *string
	if v := strings.TrimSpace(opts.schemaVersion); v != "" {
		version = &v
	}
	sub, err := lifecycle.Prepare(runCtx, raw, registry, lifecycle.PrepareOptions{
		Version:       version,
		LegacyNumeric: cfg.Validation.LegacyNumeric,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var leaderOpts []lifecycle.Option
	if placement.Rank == 0 {
		resources, err := openLeaderResources(runCtx, cfg, placement, opts, sub.Operator(), logger)
		if err != nil {
			return err
		}
		defer resources.close()
		leaderOpts = resources.options
	}

	if opts.local > 0 {
		results, err := runLocalGroup(runCtx, ctx, placement.Size, sub, logger, leaderOpts)
		if err != nil {
			return err
		}
		return reportRun(cmd, results[0], firstRankError(results), opts.jsonOutput)
	}

	comm, err := joinGroup(runCtx, cfg, placement, logger)
	if err != nil {
		return err
	}
	defer comm.Close()

	op, lookupErr := ctx.operators.Lookup(sub.Operator())
	if lookupErr != nil {
		logging.ErrorWithContext(logger, "operator not registered", "operator_lookup",
			logging.Operator(sub.Operator()),
			logging.Error(lookupErr),
			logging.String(logging.FieldImpact, "the group is aborted"),
			logging.String(logging.FieldErrorHint, "register the operator or fix the op= value"),
		)
	}
	orchestratorOpts := append([]lifecycle.Option{lifecycle.WithLogger(logger)}, leaderOpts...)
	outcome, runErr := lifecycle.New(comm, orchestratorOpts...).Run(runCtx, sub, op)
	if lookupErr != nil {
		runErr = lookupErr
	}
	if placement.Rank != 0 {
		if runErr != nil {
			return runErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rank %d finished job %s: %s\n", placement.Rank, outcome.JobID, outcome.Status)
		return nil
	}
	return reportRun(cmd, rankResult{outcome: outcome, err: runErr}, runErr, opts.jsonOutput)
}

// runLocalGroup runs every rank as a goroutine over an in-process group.
func runLocalGroup(ctx context.Context, cmdCtx *commandContext, size int, sub lifecycle.Submission, logger *slog.Logger, leaderOpts []lifecycle.Option) ([]rankResult, error) {
	comms, err := group.NewLocal(size)
	if err != nil {
		return nil, err
	}
	results := make([]rankResult, size)
	var wg sync.WaitGroup
	for rank, comm := range comms {
		op, lookupErr := cmdCtx.operators.Lookup(sub.Operator())
		opts := []lifecycle.Option{lifecycle.WithLogger(logger)}
		if rank == 0 {
			opts = append(opts, leaderOpts...)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer comm.Close()
			outcome, runErr := lifecycle.New(comm, opts...).Run(ctx, sub, op)
			if lookupErr != nil {
				runErr = lookupErr
			}
			results[rank] = rankResult{outcome: outcome, err: runErr}
		}()
	}
	wg.Wait()
	return results, nil
}

// firstRankError prefers the error of the rank that failed a phase itself
// over the aborts the other ranks observed.
func firstRankError(results []rankResult) error {
	var first error
	for _, r := range results {
		if r.err == nil {
			continue
		}
		var phaseErr *lifecycle.PhaseError
		if errors.As(r.err, &phaseErr) && !phaseErr.Remote() {
			return r.err
		}
		if first == nil {
			first = r.err
		}
	}
	return first
}

func joinGroup(ctx context.Context, cfg *config.Config, placement config.Group, logger *slog.Logger) (group.Communicator, error) {
	groupOpts := []group.Option{
		group.WithLogger(logger),
		group.WithJoinTimeout(time.Duration(placement.JoinTimeout) * time.Second),
	}
	switch {
	case placement.Size == 1:
		comms, err := group.NewLocal(1)
		if err != nil {
			return nil, err
		}
		return comms[0], nil
	case placement.Rank == 0:
		coordinator, err := group.Listen(placement.Coordinator, placement.Size, groupOpts...)
		if err != nil {
			return nil, fmt.Errorf("start coordinator: %w", err)
		}
		logger.Info("coordinator listening",
			logging.String("address", coordinator.Addr()),
			logging.Int("size", placement.Size),
		)
		if err := coordinator.WaitForMembers(ctx); err != nil {
			coordinator.Close()
			return nil, err
		}
		return coordinator, nil
	default:
		client, err := group.Dial(ctx, placement.Coordinator, placement.Rank, placement.Size, groupOpts...)
		if err != nil {
			return nil, fmt.Errorf("join coordinator %s: %w", placement.Coordinator, err)
		}
		return client, nil
	}
}

type leaderResources struct {
	options []lifecycle.Option
	closers []func()
}

func (r *leaderResources) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// openLeaderResources runs the preflight checks and opens everything only the
// leader writes to: the job store, notifications, metrics and result files.
func openLeaderResources(ctx context.Context, cfg *config.Config, placement config.Group, opts runOptions, operatorName string, logger *slog.Logger) (*leaderResources, error) {
	if !opts.skipPreflight {
		checkCfg := *cfg
		checkCfg.Group = placement
		if opts.local > 0 {
			// Goroutine ranks never use the coordinator.
			checkCfg.Group.Size = 1
		}
		failed := preflight.Failed(preflight.RunAll(ctx, &checkCfg, []string{operatorName}))
		if len(failed) > 0 {
			details := make([]string, 0, len(failed))
			for _, r := range failed {
				details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
			return nil, fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
		}
	}

	resources := &leaderResources{}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	resources.closers = append(resources.closers, func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		server, err := metrics.Listen(addr, reg)
		if err != nil {
			resources.close()
			return nil, fmt.Errorf("start metrics listener: %w", err)
		}
		logger.Info("metrics listening", logging.String("address", server.Addr()))
		resources.closers = append(resources.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Close(shutdownCtx)
		})
	}

	resources.options = []lifecycle.Option{
		lifecycle.WithStore(store),
		lifecycle.WithNotifier(notifications.NewService(cfg)),
		lifecycle.WithMetrics(collector),
		lifecycle.WithLockDir(cfg.LockDir()),
		lifecycle.WithDrainTimeout(cfg.DrainTimeout()),
	}
	if cfg.Results.WriteDocuments {
		resources.options = append(resources.options, lifecycle.WithResultDir(cfg.ResultsDir()))
	}
	return resources, nil
}

// exitOnSignal logs and terminates the process on SIGINT or SIGTERM. Running
// phases are not cancelled; the job keeps its last recorded status.
func exitOnSignal(logger *slog.Logger, exit func(int)) func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-signals:
			logging.WarnWithContext(logger, "interrupted; abandoning job", "signal_received",
				logging.String("signal", sig.String()),
				logging.String(logging.FieldImpact, "the job keeps its last recorded status"),
				logging.String(logging.FieldErrorHint, "resubmit the descriptor to run it again"),
			)
			exit(interruptExitCode)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(signals)
		close(done)
	}
}

type runSummary struct {
	JobID      string   `json:"job_id"`
	Status     string   `json:"status"`
	StatusCode int      `json:"status_code"`
	Path       []string `json:"path"`
	ResultPath string   `json:"result_path,omitempty"`
	Result     any      `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func reportRun(cmd *cobra.Command, leader rankResult, runErr error, jsonOutput bool) error {
	outcome := leader.outcome
	if jsonOutput {
		summary := runSummary{
			JobID:      outcome.JobID,
			Status:     outcome.Status.String(),
			StatusCode: int(outcome.Status),
			ResultPath: outcome.ResultPath,
			Result:     outcome.Result,
		}
		for _, s := range outcome.Path {
			summary.Path = append(summary.Path, s.String())
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
		return runErr
	}

	if outcome.JobID == "" {
		return runErr
	}
	pairs := [][2]string{
		{"Job", outcome.JobID},
		{"Status", fmt.Sprintf("%s (%d)", statusLabel(outcome.Status), int(outcome.Status))},
		{"Path", statusPath(outcome.Path)},
	}
	if outcome.ResultPath != "" {
		pairs = append(pairs, [2]string{"Result document", outcome.ResultPath})
	}
	if outcome.Result != nil {
		pairs = append(pairs, [2]string{"Result", fmt.Sprintf("%+v", outcome.Result)})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderPairs(pairs))
	return runErr
}
