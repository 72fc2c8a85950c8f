package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"opgrid/internal/group"
)

// PhaseError reports the phase in which a rank's lifecycle ended.
type PhaseError struct {
	Phase Phase
	Rank  int
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed on rank %d: %v", e.Phase, e.Rank, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Status returns the terminal status for the failed phase.
func (e *PhaseError) Status() Status {
	return e.Phase.ErrorStatus()
}

// Remote reports whether the phase failed because another rank aborted the
// group rather than because of a local operator error.
func (e *PhaseError) Remote() bool {
	return errors.Is(e.Err, group.ErrAborted)
}

// abortCause is the text sent to the group when a rank aborts. It carries the
// failing phase so the leader can name it in diagnostics.
func abortCause(phase Phase, err error) error {
	return fmt.Errorf("%s: %w", phase, err)
}

// remotePhase extracts the phase named in an abort cause.
func remotePhase(err error) (Phase, int, bool) {
	var abortErr *group.AbortError
	if !errors.As(err, &abortErr) {
		return 0, 0, false
	}
	for _, phase := range Phases() {
		if strings.HasPrefix(abortErr.Cause, phase.String()+":") {
			return phase, abortErr.Rank, true
		}
	}
	return 0, abortErr.Rank, false
}
