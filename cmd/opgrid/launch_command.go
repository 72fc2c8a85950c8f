package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

func newLaunchCommand(ctx *commandContext) *cobra.Command {
	var (
		ranks         int
		coordinator   string
		schemaVersion string
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "launch <descriptor>",
		Short: "Start one run process per rank on this host",
		Long: `Launch starts N copies of "opgrid run" and waits for all of them. Each child
receives its placement through OPGRID_RANK, OPGRID_SIZE and
OPGRID_COORDINATOR; rank 0 serves the coordinator the others dial. Child
output is prefixed with its rank.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ranks < 1 {
				return fmt.Errorf("--ranks must be at least 1, got %d", ranks)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			address := strings.TrimSpace(coordinator)
			if address == "" {
				address = cfg.Group.Coordinator
			}
			if ranks > 1 {
				if err := requireFixedPort(address); err != nil {
					return err
				}
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate opgrid executable: %w", err)
			}
			childArgs := []string{"run", args[0]}
			if path := ctx.configPath(); path != "" {
				childArgs = append(childArgs, "--config", path)
			}
			if schemaVersion != "" {
				childArgs = append(childArgs, "--schema-version", schemaVersion)
			}
			if skipPreflight {
				childArgs = append(childArgs, "--skip-preflight")
			}

			out := &syncWriter{w: cmd.OutOrStdout()}
			errOut := &syncWriter{w: cmd.ErrOrStderr()}
			children := make([]*exec.Cmd, 0, ranks)
			for rank := range ranks {
				child := exec.CommandContext(cmd.Context(), exe, childArgs...)
				child.Env = append(os.Environ(),
					"OPGRID_RANK="+strconv.Itoa(rank),
					"OPGRID_SIZE="+strconv.Itoa(ranks),
					"OPGRID_COORDINATOR="+address,
				)
				prefix := fmt.Sprintf("[rank %d] ", rank)
				child.Stdout = &prefixWriter{prefix: prefix, w: out}
				child.Stderr = &prefixWriter{prefix: prefix, w: errOut}
				if err := child.Start(); err != nil {
					for _, started := range children {
						_ = started.Process.Kill()
					}
					return fmt.Errorf("start rank %d: %w", rank, err)
				}
				children = append(children, child)
			}

			var errs []error
			for rank, child := range children {
				if err := child.Wait(); err != nil {
					errs = append(errs, fmt.Errorf("rank %d: %w", rank, err))
				}
				flushPrefixed(child.Stdout, child.Stderr)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().IntVarP(&ranks, "ranks", "n", 2, "Number of rank processes to start")
	cmd.Flags().StringVar(&coordinator, "coordinator", "", "Coordinator address (defaults to the configured group.coordinator)")
	cmd.Flags().StringVar(&schemaVersion, "schema-version", "", "Pin the operator schema version")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the leader's environment checks")
	return cmd
}

func requireFixedPort(address string) error {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("coordinator address %q: %w", address, err)
	}
	if port == "" || port == "0" {
		return fmt.Errorf("coordinator address %q needs a fixed port so followers can dial it", address)
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// prefixWriter writes complete lines with a prefix and buffers the rest.
type prefixWriter struct {
	prefix string
	w      io.Writer
	buf    bytes.Buffer
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	p.buf.Write(data)
	for {
		line, err := p.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			p.buf.Reset()
			p.buf.Write(line)
			return len(data), nil
		}
		if _, err := io.WriteString(p.w, p.prefix+string(line)); err != nil {
			return len(data), err
		}
	}
}

func (p *prefixWriter) flush() {
	if p.buf.Len() == 0 {
		return
	}
	_, _ = io.WriteString(p.w, p.prefix+p.buf.String()+"\n")
	p.buf.Reset()
}

func flushPrefixed(writers ...io.Writer) {
	for _, w := range writers {
		if pw, ok := w.(*prefixWriter); ok {
			pw.flush()
		}
	}
}
