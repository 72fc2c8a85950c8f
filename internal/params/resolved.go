package params

import (
	"fmt"
	"strconv"
	"strings"

	"opgrid/internal/schema"
)

// Value is one resolved parameter.
type Value struct {
	Type     schema.ParamType
	Elements []string
}

// Warning records a non-fatal adjustment made while resolving.
type Warning struct {
	Parameter string
	Message   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Parameter, w.Message)
}

// Resolved is the validated parameter set handed to an operator. Multi-value
// parameters are decoded once into their elements.
type Resolved struct {
	order    []string
	values   map[string]Value
	warnings []Warning
}

func newResolved(capacity int) *Resolved {
	return &Resolved{
		order:  make([]string, 0, capacity),
		values: make(map[string]Value, capacity),
	}
}

func (r *Resolved) set(name string, value Value) {
	if _, exists := r.values[name]; !exists {
		r.order = append(r.order, name)
	}
	r.values[name] = value
}

func (r *Resolved) warn(name, format string, args ...any) {
	r.warnings = append(r.warnings, Warning{Parameter: name, Message: fmt.Sprintf(format, args...)})
}

// Has reports whether name resolved to a value.
func (r Resolved) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Names returns resolved names in schema order.
func (r Resolved) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the full resolved value.
func (r Resolved) Lookup(name string) (Value, bool) {
	value, ok := r.values[name]
	if !ok {
		return Value{}, false
	}
	value.Elements = append([]string(nil), value.Elements...)
	return value, true
}

// String returns the first element of name, or "" when unresolved.
func (r Resolved) String(name string) string {
	value, ok := r.values[name]
	if !ok || len(value.Elements) == 0 {
		return ""
	}
	return value.Elements[0]
}

// Strings returns every element of name.
func (r Resolved) Strings(name string) []string {
	value, ok := r.values[name]
	if !ok {
		return nil
	}
	return append([]string(nil), value.Elements...)
}

// Int returns the first element of name as an integer.
func (r Resolved) Int(name string) (int64, error) {
	raw, err := r.first(name)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return int64(f), nil
}

// Float returns the first element of name as a float.
func (r Resolved) Float(name string) (float64, error) {
	raw, err := r.first(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return f, nil
}

func (r Resolved) first(name string) (string, error) {
	value, ok := r.values[name]
	if !ok || len(value.Elements) == 0 {
		return "", fmt.Errorf("parameter %q not resolved", name)
	}
	return strings.TrimSpace(value.Elements[0]), nil
}

// Warnings returns the non-fatal adjustments made during validation.
func (r Resolved) Warnings() []Warning {
	return append([]Warning(nil), r.warnings...)
}

// Map flattens the set into name -> elements for serialization.
func (r Resolved) Map() map[string][]string {
	out := make(map[string][]string, len(r.values))
	for name, value := range r.values {
		out[name] = append([]string(nil), value.Elements...)
	}
	return out
}

// Len returns the number of resolved parameters.
func (r Resolved) Len() int {
	return len(r.values)
}
