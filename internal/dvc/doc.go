// Package dvc wraps the DVC command line for the version step.
//
// The client initializes a DVC repository on demand, tracks a data file with
// `dvc add`, and reads the resulting .dvc metadata so callers can confirm the
// tracked MD5 matches the file on disk.
package dvc
