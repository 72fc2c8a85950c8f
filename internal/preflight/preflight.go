package preflight

import (
	"context"

	"opgrid/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results never block a run.
	Optional bool
}

// Blocking reports whether a failed result should stop a run.
func (r Result) Blocking() bool {
	return !r.Passed && !r.Optional
}

// RunAll executes all applicable preflight checks for the given config.
// operators lists the registered operator names whose schemas must resolve.
func RunAll(ctx context.Context, cfg *config.Config, operators []string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckRegistry(ctx, cfg))
	for _, name := range operators {
		results = append(results, CheckOperatorSchema(ctx, cfg, name))
	}

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckJobStore(ctx, cfg))

	if cfg.Group.Size > 1 {
		results = append(results, CheckCoordinator(ctx, cfg))
	}

	if cfg.Notifications.Endpoint != "" {
		results = append(results, CheckNotificationEndpoint(ctx, cfg.Notifications.Endpoint))
	}

	return results
}

// Failed returns the blocking failures in results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Blocking() {
			failed = append(failed, r)
		}
	}
	return failed
}
