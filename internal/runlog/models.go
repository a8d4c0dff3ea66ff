package runlog

import (
	"strconv"
	"strings"
	"time"
)

// Status represents the lifecycle of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// CrashedRunReason is recorded for runs found still running at startup.
const CrashedRunReason = "run interrupted before completion"

// Run is one ledger row.
type Run struct {
	ID           string
	Status       Status
	Step         string
	Attempts     int
	Dates        []string
	RowsInserted int
	RowsSkipped  int
	CSVRows      int
	TrackedMD5   string
	CommitHash   string
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   time.Time
}

// Duration reports how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = r.UpdatedAt
	}
	if end.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// DateSpan renders the fetched dates compactly ("2024-01-01", or
// "2024-01-01..2024-01-31 (31)").
func (r Run) DateSpan() string {
	switch len(r.Dates) {
	case 0:
		return ""
	case 1:
		return r.Dates[0]
	default:
		return r.Dates[0] + ".." + r.Dates[len(r.Dates)-1] + " (" + strconv.Itoa(len(r.Dates)) + ")"
	}
}

func joinDates(dates []string) string {
	return strings.Join(dates, ",")
}

func splitDates(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
