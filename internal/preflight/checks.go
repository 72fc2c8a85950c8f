package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"opgrid/internal/config"
	"opgrid/internal/jobstore"
	"opgrid/internal/schema"
)

// CheckRegistry verifies that the schema registry directory is readable and
// lists its well-named documents.
func CheckRegistry(ctx context.Context, cfg *config.Config) Result {
	const name = "Schema registry"

	if err := cfg.CheckRegistryAccess(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	reg, err := schema.Open(cfg.Paths.RegistryDir, schema.WithExtension(cfg.Registry.Extension))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	entries, err := reg.List(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(entries) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no *.%s documents)", cfg.Paths.RegistryDir, reg.Extension())}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d documents)", cfg.Paths.RegistryDir, len(entries))}
}

// CheckOperatorSchema verifies that the latest schema for a registered
// operator resolves, primitives included.
func CheckOperatorSchema(ctx context.Context, cfg *config.Config, operator string) Result {
	name := fmt.Sprintf("Operator %s", operator)

	reg, err := schema.Open(cfg.Paths.RegistryDir, schema.WithExtension(cfg.Registry.Extension))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	s, err := reg.ResolveOperator(ctx, operator, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d parameters)", s.Source, len(s.Parameters))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckJobStore opens the job database and reads its status counts.
func CheckJobStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Job store"

	store, err := jobstore.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	total := 0
	for _, count := range stats {
		total += count
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d jobs)", store.Path(), total)}
}

// CheckCoordinator verifies the group coordinator address. The leader checks
// that it can bind the address; followers check that it answers. A follower
// may run before the leader is up, so its check is optional.
func CheckCoordinator(ctx context.Context, cfg *config.Config) Result {
	const name = "Coordinator"
	address := strings.TrimSpace(cfg.Group.Coordinator)

	if _, _, err := net.SplitHostPort(address); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%q (error: %v)", address, err)}
	}

	if cfg.Group.Rank == 0 {
		ln, err := net.Listen("tcp", address)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot listen: %v)", address, err)}
		}
		_ = ln.Close()
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", address)}
	}

	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (not reachable yet: %v)", address, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s (reachable)", address)}
}

// CheckNotificationEndpoint verifies that the notification endpoint answers.
// Notifications are best effort, so the check is optional.
func CheckNotificationEndpoint(ctx context.Context, endpoint string) Result {
	const name = "Notifications"

	base := strings.TrimSpace(endpoint)
	if base == "" {
		return Result{Name: name, Optional: true, Detail: "missing endpoint"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("check failed (%v)", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: summarizeNetworkError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("endpoint error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: "Reachable"}
}

// summarizeNetworkError produces a human-readable summary for failed checks.
func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (endpoint unreachable)"
	}
	return err.Error()
}
