// Package params checks a parsed descriptor against a schema and produces the
// resolved parameter set an operator runs with.
package params

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"opgrid/internal/descriptor"
	"opgrid/internal/schema"
)

// Option adjusts validation behaviour.
type Option func(*options)

type options struct {
	legacyNumeric bool
}

// LegacyNumeric makes non-numeric input for integer and real parameters
// resolve to its leading numeric prefix, or zero, instead of failing.
func LegacyNumeric(enabled bool) Option {
	return func(o *options) {
		o.legacyNumeric = enabled
	}
}

// Validate resolves every parameter of s against d. Parameters are checked in
// schema order and the first failure is returned; a failure never comes with
// a partial result. Descriptor names the schema does not declare are ignored,
// with a warning unless the name is reserved.
func Validate(d descriptor.Descriptor, s schema.Schema, opts ...Option) (Resolved, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	resolved := newResolved(len(s.Parameters))
	for _, spec := range s.Parameters {
		value, present, err := resolveOne(d, spec, cfg, resolved)
		if err != nil {
			return Resolved{}, err
		}
		if present {
			resolved.set(spec.Name, value)
		}
	}

	for _, name := range d.Names() {
		if descriptor.IsReserved(name) {
			continue
		}
		if _, declared := s.Parameter(name); !declared {
			resolved.warn(name, "not declared by schema %s; ignored", s.Name)
		}
	}
	return *resolved, nil
}

func resolveOne(d descriptor.Descriptor, spec schema.ParameterSpec, cfg options, resolved *Resolved) (Value, bool, error) {
	elements := d.Values(spec.Name)
	if len(elements) == 0 {
		return resolveAbsent(spec)
	}

	if !spec.Type.Numeric() {
		if err := checkAllowed(spec, elements); err != nil {
			return Value{}, false, err
		}
		return Value{Type: spec.Type, Elements: elements}, true, nil
	}

	numbers := make([]float64, len(elements))
	for i, element := range elements {
		n, err := parseNumber(spec, element, cfg.legacyNumeric)
		if err != nil {
			return Value{}, false, err
		}
		numbers[i] = n
	}

	if fixed, ok := spec.Fixed(); ok {
		forced := spec.FormatNumber(fixed)
		out := make([]string, len(elements))
		changed := false
		for i := range elements {
			if numbers[i] != fixed {
				changed = true
			}
			out[i] = forced
		}
		if changed {
			resolved.warn(spec.Name, "value %q forced to %s", strings.Join(elements, string(descriptor.ValueSeparator)), forced)
		}
		return Value{Type: spec.Type, Elements: out}, true, nil
	}

	out := make([]string, len(elements))
	for i, element := range elements {
		n := numbers[i]
		if spec.Min != nil && n < *spec.Min {
			return Value{}, false, &InvalidValueError{Name: spec.Name, Value: element, Bound: "min " + spec.FormatNumber(*spec.Min)}
		}
		if spec.Max != nil && n > *spec.Max {
			return Value{}, false, &InvalidValueError{Name: spec.Name, Value: element, Bound: "max " + spec.FormatNumber(*spec.Max)}
		}
		out[i] = spec.FormatNumber(n)
	}
	if err := checkAllowed(spec, elements); err != nil {
		return Value{}, false, err
	}
	return Value{Type: spec.Type, Elements: out}, true, nil
}

func resolveAbsent(spec schema.ParameterSpec) (Value, bool, error) {
	if spec.Mandatory {
		return Value{}, false, &MissingParameterError{Name: spec.Name}
	}
	if fixed, ok := spec.Fixed(); ok {
		return Value{Type: spec.Type, Elements: []string{spec.FormatNumber(fixed)}}, true, nil
	}
	if len(spec.Default) == 0 {
		return Value{}, false, nil
	}
	elements := append([]string(nil), spec.Default...)
	if spec.Type.Numeric() {
		for i, element := range elements {
			if n, err := strconv.ParseFloat(strings.TrimSpace(element), 64); err == nil {
				elements[i] = spec.FormatNumber(n)
			}
		}
	}
	return Value{Type: spec.Type, Elements: elements}, true, nil
}

func checkAllowed(spec schema.ParameterSpec, elements []string) error {
	if len(spec.Values) == 0 {
		return nil
	}
	for _, element := range elements {
		if !slices.Contains(spec.Values, element) {
			return &InvalidValueError{Name: spec.Name, Value: element}
		}
	}
	return nil
}

var (
	leadingInteger = regexp.MustCompile(`^[+-]?[0-9]+`)
	leadingReal    = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?`)
)

func parseNumber(spec schema.ParameterSpec, element string, legacy bool) (float64, error) {
	text := strings.TrimSpace(element)
	if spec.Type == schema.TypeInteger {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return float64(n), nil
		}
		if !legacy {
			return 0, &TypeMismatchError{Name: spec.Name, Value: element, Type: spec.Type}
		}
		n, _ := strconv.ParseInt(leadingInteger.FindString(text), 10, 64)
		return float64(n), nil
	}

	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, nil
	}
	if !legacy {
		return 0, &TypeMismatchError{Name: spec.Name, Value: element, Type: spec.Type}
	}
	f, _ := strconv.ParseFloat(leadingReal.FindString(text), 64)
	return f, nil
}
