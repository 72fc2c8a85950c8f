// Package logging assembles structured slog loggers and formatting helpers used
// across opgrid.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so lifecycle code can tag log
// lines with job IDs, ranks, phases and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every rank emits
// records with the same shape.
package logging
