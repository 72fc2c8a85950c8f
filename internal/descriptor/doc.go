// Package descriptor parses and validates task descriptors.
//
// A descriptor is a single line of `name=value` pairs separated by ';'. A
// value may hold several elements separated by '|', and any value may wrap
// literal text between two EscapeMarker occurrences so that '=', ';' and '|'
// lose their meaning inside it:
//
//	op=demo;count=5;files=a.nc|b.nc;expr=%%x=1;y=2%%;
//
// Validate runs the structural state machine, Parse builds an immutable
// Descriptor, and Find extracts a single value from an unparsed string, which
// the orchestrator uses to pull correlation identifiers out of a submission
// before anything else has been checked.
package descriptor
