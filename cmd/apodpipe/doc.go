// Package main hosts the apodpipe CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the extract-transform-load-version-commit
// pipeline once per invocation and exposes the inspection commands around it:
// preflight checks, the run ledger, stored records, DVC hash verification,
// the log file, and configuration scaffolding. Scheduling is left to cron,
// systemd timers, or CI; every command exits non-zero on failure so those
// schedulers can alert on it.
package main
