package params

import (
	"errors"
	"fmt"

	"opgrid/internal/schema"
	"opgrid/internal/services"
)

var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidValue     = errors.New("invalid parameter value")
	ErrTypeMismatch     = errors.New("parameter type mismatch")
)

// MissingParameterError reports an absent mandatory parameter.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing mandatory parameter %q", e.Name)
}

func (e *MissingParameterError) Unwrap() []error {
	return []error{ErrMissingParameter, services.ErrValidation}
}

// InvalidValueError reports a value outside its bounds or allowed set. Bound
// is empty when the value failed an enumerated set.
type InvalidValueError struct {
	Name  string
	Value string
	Bound string
}

func (e *InvalidValueError) Error() string {
	if e.Bound == "" {
		return fmt.Sprintf("parameter %q: value %q is not an allowed value", e.Name, e.Value)
	}
	return fmt.Sprintf("parameter %q: value %q violates %s", e.Name, e.Value, e.Bound)
}

func (e *InvalidValueError) Unwrap() []error {
	return []error{ErrInvalidValue, services.ErrValidation}
}

// TypeMismatchError reports a value that does not parse as its declared type.
type TypeMismatchError struct {
	Name  string
	Value string
	Type  schema.ParamType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("parameter %q: value %q is not a valid %s", e.Name, e.Value, e.Type)
}

func (e *TypeMismatchError) Unwrap() []error {
	return []error{ErrTypeMismatch, services.ErrValidation}
}
