package stage

import (
	"testing"
	"time"

	"apodpipe/internal/record"
)

func TestRequestLabel(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"today", Request{}, "today"},
		{"date", Request{Date: day}, "2024-01-15"},
		{"range", Request{Start: day, End: day.AddDate(0, 0, 2)}, "2024-01-15..2024-01-17"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.req.Label(); got != tc.want {
				t.Fatalf("Label() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRunStateDatesPrefersRecords(t *testing.T) {
	state := &RunState{
		Payloads: []record.Payload{{Date: "2024-01-01"}, {Date: "2024-01-02"}},
	}
	if got := state.Dates(); len(got) != 2 {
		t.Fatalf("expected payload dates before transform, got %v", got)
	}
	state.Records = []record.Observation{{Date: "2024-01-02"}}
	if got := state.Dates(); len(got) != 1 || got[0] != "2024-01-02" {
		t.Fatalf("expected record dates, got %v", got)
	}
}

func TestRunStateClock(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := &RunState{Now: func() time.Time { return fixed }}
	if !state.Clock().Equal(fixed) {
		t.Fatalf("expected injected clock")
	}
	if (&RunState{}).Clock().IsZero() {
		t.Fatal("expected default clock")
	}
}
