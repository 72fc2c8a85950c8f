package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the persisted job-status code. The numeric values are part of the
// external contract: they are stored in the job store and sent in
// notifications.
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusSetEnv
	StatusInit
	StatusDistribute
	StatusExecute
	StatusReduce
	StatusDestroy
	StatusUnsetEnv
	StatusSetEnvError
	StatusInitError
	StatusDistributeError
	StatusExecuteError
	StatusReduceError
	StatusDestroyError
	StatusUnsetEnvError
	StatusCompleted
)

var statusNames = [...]string{
	StatusCreated:         "CREATED",
	StatusRunning:         "RUNNING",
	StatusSetEnv:          "SET_ENV",
	StatusInit:            "INIT",
	StatusDistribute:      "DISTRIBUTE",
	StatusExecute:         "EXECUTE",
	StatusReduce:          "REDUCE",
	StatusDestroy:         "DESTROY",
	StatusUnsetEnv:        "UNSET_ENV",
	StatusSetEnvError:     "SET_ENV_ERROR",
	StatusInitError:       "INIT_ERROR",
	StatusDistributeError: "DISTRIBUTE_ERROR",
	StatusExecuteError:    "EXECUTE_ERROR",
	StatusReduceError:     "REDUCE_ERROR",
	StatusDestroyError:    "DESTROY_ERROR",
	StatusUnsetEnvError:   "UNSET_ENV_ERROR",
	StatusCompleted:       "COMPLETED",
}

// AllStatuses lists every status in code order.
func AllStatuses() []Status {
	out := make([]Status, 0, len(statusNames))
	for s := StatusCreated; s <= StatusCompleted; s++ {
		out = append(out, s)
	}
	return out
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Valid reports whether s is a known code.
func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusCompleted
}

// ParseStatus accepts a status label (case-insensitive) or its numeric code.
func ParseStatus(value string) (Status, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	for i, name := range statusNames {
		if name == trimmed {
			return Status(i), nil
		}
	}
	if code, err := strconv.Atoi(trimmed); err == nil && Status(code).Valid() {
		return Status(code), nil
	}
	return 0, fmt.Errorf("unknown job status %q", value)
}

// IsError reports whether s is one of the per-phase error states.
func (s Status) IsError() bool {
	return s >= StatusSetEnvError && s <= StatusUnsetEnvError
}

// IsTerminal reports whether s has no outgoing transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s.IsError()
}

// Phase returns the phase a running or error status belongs to.
func (s Status) Phase() (Phase, bool) {
	switch {
	case s >= StatusSetEnv && s <= StatusUnsetEnv:
		return Phase(s - StatusSetEnv), true
	case s.IsError():
		return Phase(s - StatusSetEnvError), true
	}
	return 0, false
}

// CanTransition reports whether from -> to is an edge of the lifecycle state
// machine. Phases advance strictly in order; each running phase may instead
// fail into its own error state. Error states and COMPLETED are terminal.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusCreated:
		return to == StatusRunning
	case from == StatusRunning:
		return to == StatusSetEnv
	case from >= StatusSetEnv && from < StatusUnsetEnv:
		phase, _ := from.Phase()
		return to == from+1 || to == phase.ErrorStatus()
	case from == StatusUnsetEnv:
		return to == StatusCompleted || to == StatusUnsetEnvError
	default:
		return false
	}
}

// Machine tracks one rank's position in the state machine and rejects
// illegal edges.
type Machine struct {
	current Status
	visited []Status
}

// NewMachine starts a machine in CREATED.
func NewMachine() *Machine {
	return &Machine{current: StatusCreated, visited: []Status{StatusCreated}}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	return m.current
}

// Path returns every status entered so far, in order.
func (m *Machine) Path() []Status {
	return append([]Status(nil), m.visited...)
}

// Transition moves to the next status.
func (m *Machine) Transition(to Status) error {
	if !CanTransition(m.current, to) {
		return fmt.Errorf("disallowed status transition: %s -> %s", m.current, to)
	}
	m.current = to
	m.visited = append(m.visited, to)
	return nil
}
