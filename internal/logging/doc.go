// Package logging assembles structured slog loggers and formatting helpers used
// across apodpipe.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so step code can automatically tag log
// lines with run IDs, step names, and attempt numbers. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the pipeline.
package logging
