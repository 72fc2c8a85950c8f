package descriptor

import (
	"errors"
	"fmt"

	"opgrid/internal/services"
)

// ErrMalformed matches every MalformedError via errors.Is.
var ErrMalformed = errors.New("malformed descriptor")

// MalformedError reports why a descriptor was rejected. It never carries a
// partial parse result.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed descriptor at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() []error {
	return []error{ErrMalformed, services.ErrValidation}
}

func malformed(offset int, format string, args ...any) error {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
