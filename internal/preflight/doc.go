// Package preflight provides readiness checks for the binaries, directories,
// database, and credentials the pipeline depends on.
//
// The CLI "apodpipe check" command runs RunAll and prints one line per
// result. Checks are independent and run concurrently; each reports its own
// outcome rather than aborting the others.
package preflight
