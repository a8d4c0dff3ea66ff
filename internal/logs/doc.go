// Package logs reads the pipeline log file for the `apodpipe logs` command.
//
// Tail returns the last N lines (optionally only those mentioning a run id)
// and an offset that follow mode polls from until new lines arrive or the
// context ends.
package logs
