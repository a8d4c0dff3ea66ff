package stage

import (
	"time"

	"apodpipe/internal/record"
)

// Request selects what the extract step fetches. A zero Request means today.
type Request struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// IsRange reports whether the request is a backfill over a date range.
func (r Request) IsRange() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

// Label renders the request for logs ("today", a date, or "start..end").
func (r Request) Label() string {
	switch {
	case r.IsRange():
		return r.Start.Format(record.DateLayout) + ".." + r.End.Format(record.DateLayout)
	case !r.Date.IsZero():
		return r.Date.Format(record.DateLayout)
	default:
		return "today"
	}
}

// RunState is the data passed between steps within one run.
type RunState struct {
	RunID   string
	Request Request
	Now     func() time.Time

	Payloads []record.Payload
	Records  []record.Observation

	Inserted      int
	Skipped       int
	InsertedDates []string
	CSVPath       string
	CSVRows       int

	RepoCSVPath  string
	MetadataPath string
	TrackedMD5   string

	Committed     bool
	CommitHash    string
	CommitWarning string
}

// Clock returns the state's time source, defaulting to time.Now.
func (s *RunState) Clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Dates lists the dates of the transformed records, in order.
func (s *RunState) Dates() []string {
	dates := make([]string, 0, len(s.Records))
	for _, obs := range s.Records {
		dates = append(dates, obs.Date)
	}
	if len(dates) == 0 {
		for _, p := range s.Payloads {
			dates = append(dates, p.Date)
		}
	}
	return dates
}
