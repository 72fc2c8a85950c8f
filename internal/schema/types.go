package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a registry document.
type Kind string

const (
	KindOperator  Kind = "operator"
	KindPrimitive Kind = "primitive"
	KindHierarchy Kind = "hierarchy"
)

// ParseKind maps a user-supplied kind name to a Kind.
func ParseKind(value string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(value))); kind {
	case KindOperator, KindPrimitive, KindHierarchy:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown schema kind %q", value)
	}
}

// ParamType is the declared value kind of a parameter.
type ParamType string

const (
	TypeInteger ParamType = "integer"
	TypeReal    ParamType = "real"
	TypeText    ParamType = "text"
)

// Numeric reports whether values of this type are parsed as numbers.
func (t ParamType) Numeric() bool {
	return t == TypeInteger || t == TypeReal
}

// ParameterSpec describes one legal parameter.
type ParameterSpec struct {
	Name      string
	Type      ParamType
	Mandatory bool
	// Default holds the default elements; empty means no default.
	Default []string
	Min     *float64
	Max     *float64
	Values  []string
}

// Fixed returns the single legal value when min and max are both set and
// equal.
func (p ParameterSpec) Fixed() (float64, bool) {
	if p.Min == nil || p.Max == nil || *p.Min != *p.Max {
		return 0, false
	}
	return *p.Min, true
}

// FormatNumber renders n the way values of this parameter are stored.
func (p ParameterSpec) FormatNumber(n float64) string {
	if p.Type == TypeInteger {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Bounds renders the declared range for display.
func (p ParameterSpec) Bounds() string {
	switch {
	case p.Min != nil && p.Max != nil:
		return fmt.Sprintf("[%s, %s]", p.FormatNumber(*p.Min), p.FormatNumber(*p.Max))
	case p.Min != nil:
		return fmt.Sprintf(">= %s", p.FormatNumber(*p.Min))
	case p.Max != nil:
		return fmt.Sprintf("<= %s", p.FormatNumber(*p.Max))
	default:
		return ""
	}
}

// Schema is an immutable, fully expanded parameter contract.
type Schema struct {
	Name        string
	Kind        Kind
	Version     Version
	Source      string
	Description string
	Parameters  []ParameterSpec
}

// Parameter returns the spec for name.
func (s Schema) Parameter(name string) (ParameterSpec, bool) {
	for _, spec := range s.Parameters {
		if spec.Name == name {
			return spec, true
		}
	}
	return ParameterSpec{}, false
}

// Entry describes one registry document without loading it.
type Entry struct {
	Name     string
	Kind     Kind
	Version  Version
	Document string
}
