// Package services defines shared utilities consumed by the lifecycle
// orchestrator, the operators it drives, and the adapters for external
// collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, ranks, phase names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures from the
//     parser, resolver, validator and stores classify uniformly.
//
// Use these helpers when wiring new operator logic so operational behaviour
// (error handling, observability) stays uniform across the group.
package services
