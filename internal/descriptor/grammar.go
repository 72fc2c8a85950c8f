package descriptor

import "strings"

const (
	// EscapeMarker opens and closes a literal segment inside a value.
	EscapeMarker = "%%"

	ParamSeparator = ';'
	ValueSeparator = '|'
	Assign         = '='
)

// Reserved parameter names consumed by the orchestrator rather than the
// operator.
const (
	NameOperator = "op"
	NameJobID    = "jobid"
	NameSession  = "session"
	NameMarker   = "marker"
	NameUser     = "user"
	NameRole     = "role"
)

// ReservedNames lists every name the orchestrator consumes.
var ReservedNames = []string{NameOperator, NameJobID, NameSession, NameMarker, NameUser, NameRole}

// IsReserved reports whether name is consumed by the orchestrator.
func IsReserved(name string) bool {
	for _, reserved := range ReservedNames {
		if name == reserved {
			return true
		}
	}
	return false
}

func isStructural(c byte) bool {
	return c == Assign || c == ParamSeparator || c == ValueSeparator
}

// Validate checks raw against the descriptor grammar. The scan tracks the most
// recent structural character and whether anything was read since it; the
// start of the string behaves like a parameter separator.
func Validate(raw string) error {
	if raw == "" {
		return malformed(0, "empty descriptor")
	}

	var (
		last    byte = ParamSeparator
		content bool
		inName  = true
		escaped bool
		opened  int
	)

	for i := 0; i < len(raw); {
		if escaped {
			if strings.HasPrefix(raw[i:], EscapeMarker) {
				escaped = false
				i += len(EscapeMarker)
				continue
			}
			i++
			continue
		}
		if strings.HasPrefix(raw[i:], EscapeMarker) {
			if inName {
				return malformed(i, "escape marker inside parameter name")
			}
			escaped = true
			content = true
			opened = i
			i += len(EscapeMarker)
			continue
		}

		c := raw[i]
		if !isStructural(c) {
			content = true
			i++
			continue
		}
		if !content {
			if i == 0 && c == ParamSeparator {
				return malformed(i, "descriptor must not begin with %q", ParamSeparator)
			}
			return malformed(i, "empty token between %q and %q", last, c)
		}
		switch c {
		case Assign:
			if !inName {
				return malformed(i, "unexpected %q inside a value", c)
			}
			inName = false
		case ParamSeparator:
			if inName {
				return malformed(i, "parameter name without value")
			}
			inName = true
		case ValueSeparator:
			if inName {
				return malformed(i, "unexpected %q outside a value", c)
			}
		}
		last = c
		content = false
		i++
	}

	if escaped {
		return malformed(opened, "unterminated escaped segment")
	}
	if !content {
		if last != ParamSeparator {
			return malformed(len(raw), "dangling %q at end of descriptor", last)
		}
		return nil
	}
	if inName {
		return malformed(len(raw), "parameter name without value")
	}
	return nil
}

// indexOutside returns the index of the first sep in s that is not inside an
// escaped segment, or -1.
func indexOutside(s string, sep byte) int {
	escaped := false
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], EscapeMarker) {
			escaped = !escaped
			i += len(EscapeMarker)
			continue
		}
		if !escaped && s[i] == sep {
			return i
		}
		i++
	}
	return -1
}

// splitOutside splits s on sep, ignoring separators inside escaped segments.
func splitOutside(s string, sep byte) []string {
	var parts []string
	for {
		idx := indexOutside(s, sep)
		if idx < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:idx])
		s = s[idx+1:]
	}
}

// eachPair walks the name=value segments of raw left to right. It is lenient:
// segments without '=' are skipped so it can run on unvalidated input.
func eachPair(raw string, fn func(name, value string) bool) {
	for _, segment := range splitOutside(raw, ParamSeparator) {
		if segment == "" {
			continue
		}
		idx := indexOutside(segment, Assign)
		if idx < 0 {
			continue
		}
		if !fn(segment[:idx], segment[idx+1:]) {
			return
		}
	}
}

// Unescape removes escape markers from a raw value.
func Unescape(value string) string {
	if !strings.Contains(value, EscapeMarker) {
		return value
	}
	return strings.ReplaceAll(value, EscapeMarker, "")
}

// Escape wraps value in escape markers when it contains structural characters.
// Values that themselves contain EscapeMarker cannot be represented and have
// the marker removed.
func Escape(value string) string {
	value = strings.ReplaceAll(value, EscapeMarker, "")
	if strings.ContainsAny(value, "=;|") {
		return EscapeMarker + value + EscapeMarker
	}
	return value
}

// Find returns the first value bound to name in raw, with escape markers
// removed. raw does not need to be validated first.
func Find(raw, name string) (string, bool) {
	var (
		found string
		ok    bool
	)
	eachPair(raw, func(n, v string) bool {
		if n == name {
			found, ok = Unescape(v), true
			return false
		}
		return true
	})
	return found, ok
}

// SplitMultiValue splits a raw value on '|' outside escaped segments and
// removes escape markers. Empty elements are dropped, so an empty value yields
// no elements.
func SplitMultiValue(value string) []string {
	if value == "" {
		return nil
	}
	parts := splitOutside(value, ValueSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = Unescape(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
