package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrExternal      = errors.New("external collaborator error")
	ErrTransient     = errors.New("transient failure")
)

// Kind classifies an error by the marker it carries.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindExternal      Kind = "external"
	KindTransient     Kind = "transient"
	KindUnknown       Kind = "unknown"
)

// ErrorDetails is the structured view of a wrapped error used for logging and
// failure diagnostics.
type ErrorDetails struct {
	Kind      Kind
	Operation string
	Message   string
	Cause     error
}

type wrappedError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &wrappedError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts the structured fields of an error produced by Wrap. Errors
// from elsewhere are classified by marker only and report their own text.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		return ErrorDetails{
			Kind:      Classify(err),
			Operation: wrapped.operation,
			Message:   wrapped.message,
			Cause:     wrapped.cause,
		}
	}
	return ErrorDetails{Kind: Classify(err), Message: err.Error()}
}

// Classify maps an error onto the marker kind it carries.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExternal):
		return KindExternal
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
