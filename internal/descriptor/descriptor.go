package descriptor

import (
	"sort"
	"strings"
)

// Descriptor is the parsed, immutable form of a task descriptor.
type Descriptor struct {
	raw    string
	values map[string]string
}

// Parse validates raw and builds a Descriptor. When a name repeats, the first
// occurrence wins, matching Find.
func Parse(raw string) (Descriptor, error) {
	if err := Validate(raw); err != nil {
		return Descriptor{}, err
	}
	values := make(map[string]string)
	eachPair(raw, func(name, value string) bool {
		if _, exists := values[name]; !exists {
			values[name] = value
		}
		return true
	})
	return Descriptor{raw: raw, values: values}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(raw string) Descriptor {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// Raw returns the value bound to name exactly as submitted, escape markers
// included.
func (d Descriptor) Raw(name string) (string, bool) {
	value, ok := d.values[name]
	return value, ok
}

// Lookup returns the value bound to name with escape markers removed.
func (d Descriptor) Lookup(name string) (string, bool) {
	value, ok := d.values[name]
	if !ok {
		return "", false
	}
	return Unescape(value), true
}

// Get returns the unescaped value for name or "" when absent.
func (d Descriptor) Get(name string) string {
	value, _ := d.Lookup(name)
	return value
}

// Values returns the elements of a multi-value parameter.
func (d Descriptor) Values(name string) []string {
	value, ok := d.values[name]
	if !ok {
		return nil
	}
	return SplitMultiValue(value)
}

// Has reports whether name was supplied.
func (d Descriptor) Has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// Names returns the supplied parameter names in lexical order.
func (d Descriptor) Names() []string {
	names := make([]string, 0, len(d.values))
	for name := range d.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of distinct parameters.
func (d Descriptor) Len() int {
	return len(d.values)
}

// String returns the descriptor as submitted.
func (d Descriptor) String() string {
	return d.raw
}

// Operator returns the operator name carried by the descriptor.
func (d Descriptor) Operator() string {
	return strings.TrimSpace(d.Get(NameOperator))
}

// JobID returns the caller-supplied job identifier, if any.
func (d Descriptor) JobID() string {
	return strings.TrimSpace(d.Get(NameJobID))
}

// Session returns the session correlation identifier.
func (d Descriptor) Session() string {
	return strings.TrimSpace(d.Get(NameSession))
}

// Marker returns the marker/workflow correlation identifier.
func (d Descriptor) Marker() string {
	return strings.TrimSpace(d.Get(NameMarker))
}

// User returns the submitting user identity.
func (d Descriptor) User() string {
	return strings.TrimSpace(d.Get(NameUser))
}

// Role returns the submitting user role.
func (d Descriptor) Role() string {
	return strings.TrimSpace(d.Get(NameRole))
}

// Pair is a single name/value used to build descriptor-shaped strings.
type Pair struct {
	Name  string
	Value string
}

// Format renders pairs as a descriptor, escaping values that contain
// structural characters and skipping pairs with an empty name or value.
func Format(pairs ...Pair) string {
	var b strings.Builder
	for _, pair := range pairs {
		name := strings.TrimSpace(pair.Name)
		if name == "" || pair.Value == "" {
			continue
		}
		b.WriteString(name)
		b.WriteByte(Assign)
		b.WriteString(Escape(pair.Value))
		b.WriteByte(ParamSeparator)
	}
	return b.String()
}
