package record_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"apodpipe/internal/record"
)

const samplePayload = `{
  "copyright": "\nJohn Doe\n",
  "date": "2024-01-15",
  "explanation": "A spiral galaxy.",
  "hdurl": "https://apod.nasa.gov/apod/image/2401/galaxy_hd.jpg",
  "media_type": "image",
  "service_version": "v1",
  "title": "Galaxy",
  "url": "https://apod.nasa.gov/apod/image/2401/galaxy.jpg"
}`

func TestFromPayloadSelectsDocumentedFields(t *testing.T) {
	var payload record.Payload
	if err := json.Unmarshal([]byte(samplePayload), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	now := time.Date(2024, 1, 15, 12, 30, 0, 0, time.FixedZone("EST", -5*3600))

	got, err := record.FromPayload(payload, now)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	want := record.Observation{
		Date:               "2024-01-15",
		Title:              "Galaxy",
		URL:                "https://apod.nasa.gov/apod/image/2401/galaxy.jpg",
		Explanation:        "A spiral galaxy.",
		MediaType:          "image",
		Copyright:          "John Doe",
		IngestionTimestamp: "2024-01-15T17:30:00Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("observation mismatch (-want +got):\n%s", diff)
	}
	if len(got.Values()) != len(record.Columns()) {
		t.Fatalf("values/columns length mismatch: %d vs %d", len(got.Values()), len(record.Columns()))
	}
}

func TestFromPayloadMissingFieldsBecomeEmpty(t *testing.T) {
	got, err := record.FromPayload(record.Payload{Date: "2024-02-01"}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	if got.Copyright != "" || got.Title != "" || got.MediaType != "" {
		t.Fatalf("expected empty strings for missing fields, got %+v", got)
	}
}

func TestFromPayloadNormalizesUnicode(t *testing.T) {
	decomposed := "Come\u0300te"
	got, err := record.FromPayload(record.Payload{Date: "2024-02-01", Title: decomposed}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	if got.Title != "Com\u00e8te" {
		t.Fatalf("expected NFC title, got %q", got.Title)
	}
}

func TestFromPayloadRejectsBadDates(t *testing.T) {
	cases := []struct {
		name string
		date string
	}{
		{"missing", ""},
		{"whitespace", "   "},
		{"malformed", "15/01/2024"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := record.FromPayload(record.Payload{Date: tc.date}, time.Now()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTransformRejectsEmptyBatch(t *testing.T) {
	_, err := record.Transform(nil, time.Now())
	if !errors.Is(err, record.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestTransformSharesTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := record.Transform([]record.Payload{{Date: "2024-02-28"}, {Date: "2024-02-29"}}, now)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
	if got[0].IngestionTimestamp != got[1].IngestionTimestamp {
		t.Fatalf("expected shared timestamp, got %q and %q", got[0].IngestionTimestamp, got[1].IngestionTimestamp)
	}
}

func TestParseRowByHeaderName(t *testing.T) {
	header := []string{"title", "date", "extra", "url"}
	row := []string{"Galaxy", "2024-01-15", "ignored", "https://example.com/a.jpg"}

	got, err := record.ParseRow(header, row)
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	want := record.Observation{Date: "2024-01-15", Title: "Galaxy", URL: "https://example.com/a.jpg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}

	if _, err := record.ParseRow([]string{"title"}, []string{"x"}); !errors.Is(err, record.ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
}
