package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a non-empty sequence of non-negative integers written with '.'
// separators.
type Version []uint64

// ParseVersion parses a dotted version string such as "1.10.2".
func ParseVersion(value string) (Version, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("parse version: empty")
	}
	fields := strings.Split(value, ".")
	version := make(Version, 0, len(fields))
	for _, field := range fields {
		if field == "" || strings.TrimLeft(field, "0123456789") != "" {
			return nil, fmt.Errorf("parse version %q: field %q is not a non-negative integer", value, field)
		}
		n, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version %q: %w", value, err)
		}
		version = append(version, n)
	}
	return version, nil
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, field := range v {
		parts[i] = strconv.FormatUint(field, 10)
	}
	return strings.Join(parts, ".")
}

// Compare orders versions field by field; a missing trailing field counts as
// zero, so 1.2 and 1.2.0 are equal.
func (v Version) Compare(other Version) int {
	n := max(len(v), len(other))
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// comparisonKeys renders every version as a fixed-width string: M fields,
// each zero-padded to W digits, where M is the largest field count and W the
// widest field seen across all versions. Lexicographic order on the keys
// matches numeric order on the versions.
func comparisonKeys(versions []Version) []string {
	fieldCount := 0
	width := 1
	for _, version := range versions {
		fieldCount = max(fieldCount, len(version))
		for _, field := range version {
			width = max(width, len(strconv.FormatUint(field, 10)))
		}
	}

	keys := make([]string, len(versions))
	var b strings.Builder
	for i, version := range versions {
		b.Reset()
		for f := 0; f < fieldCount; f++ {
			var field uint64
			if f < len(version) {
				field = version[f]
			}
			fmt.Fprintf(&b, "%0*d", width, field)
		}
		keys[i] = b.String()
	}
	return keys
}

// selectLatest returns the index of the greatest version and whether another
// candidate tied with it. On a tie the earliest index wins.
func selectLatest(versions []Version) (int, bool) {
	if len(versions) == 0 {
		return -1, false
	}
	keys := comparisonKeys(versions)
	best := 0
	tied := false
	for i := 1; i < len(keys); i++ {
		switch {
		case keys[i] > keys[best]:
			best = i
			tied = false
		case keys[i] == keys[best]:
			tied = true
		}
	}
	return best, tied
}
