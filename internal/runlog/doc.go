// Package runlog persists the history of pipeline runs in a SQLite ledger.
//
// Each run is one row keyed by its UUID. The pipeline writes the row when the
// run starts and updates it as steps complete, so `apodpipe history` can show
// what a run fetched, how many rows it inserted, which hash DVC tracked, and
// where it failed. Runs left in the running state by a crashed process are
// marked failed the next time the ledger is opened by a run.
package runlog
