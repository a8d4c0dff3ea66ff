// Package services defines shared utilities consumed by the pipeline steps and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, step names, and attempt numbers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures as
//     retryable (network, tool, IO) or terminal (validation, configuration).
//
// Use these helpers when wiring new step logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
