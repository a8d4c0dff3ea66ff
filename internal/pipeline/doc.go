// Package pipeline wires the five steps to their clients and executes one
// run: extract, transform, load, version, commit.
//
// A run holds an exclusive lock file in the state directory, receives a UUID
// that is stamped on every log line, and is recorded in the run ledger from
// start to finish. Steps execute sequentially through stageexec, which owns
// the retry policy; the first step that exhausts its attempts fails the run.
package pipeline
