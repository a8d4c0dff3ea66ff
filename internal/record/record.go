// Package record defines the tabular APOD observation shared by every sink.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DateLayout is the calendar date format the APOD API uses for keys.
const DateLayout = "2006-01-02"

var (
	// ErrMissingDate reports a payload or row that lacks the date key.
	ErrMissingDate = errors.New("record has no date")
	// ErrEmptyBatch reports a transform invoked without any payloads.
	ErrEmptyBatch = errors.New("no data received from extraction step")
)

// Payload is the subset of the APOD API response the pipeline understands.
// Absent JSON fields decode to empty strings.
type Payload struct {
	Date           string `json:"date"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	HDURL          string `json:"hdurl,omitempty"`
	Explanation    string `json:"explanation"`
	MediaType      string `json:"media_type"`
	Copyright      string `json:"copyright,omitempty"`
	ServiceVersion string `json:"service_version,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
}

// Observation is one APOD entry in tabular form. Date is the unique key.
type Observation struct {
	Date               string
	Title              string
	URL                string
	Explanation        string
	MediaType          string
	Copyright          string
	IngestionTimestamp string
}

var columns = []string{
	"date",
	"title",
	"url",
	"explanation",
	"media_type",
	"copyright",
	"ingestion_timestamp",
}

// Columns returns the ordered column list used for the CSV header and SQL inserts.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// Values returns the observation's fields in Columns order.
func (o Observation) Values() []string {
	return []string{
		o.Date,
		o.Title,
		o.URL,
		o.Explanation,
		o.MediaType,
		o.Copyright,
		o.IngestionTimestamp,
	}
}

// FromPayload selects the fields of interest and stamps the ingestion time.
func FromPayload(p Payload, now time.Time) (Observation, error) {
	obs := Observation{
		Date:               clean(p.Date),
		Title:              clean(p.Title),
		URL:                clean(p.URL),
		Explanation:        clean(p.Explanation),
		MediaType:          clean(p.MediaType),
		Copyright:          clean(p.Copyright),
		IngestionTimestamp: now.UTC().Format(time.RFC3339),
	}
	if err := validateDate(obs.Date); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// Transform converts a batch of payloads, sharing one ingestion timestamp.
func Transform(payloads []Payload, now time.Time) ([]Observation, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]Observation, 0, len(payloads))
	for i, p := range payloads {
		obs, err := FromPayload(p, now)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

// ParseRow rebuilds an observation from a CSV row using header names.
// Unknown columns are ignored; missing ones stay empty.
func ParseRow(header, row []string) (Observation, error) {
	var obs Observation
	for i, name := range header {
		if i >= len(row) {
			break
		}
		value := row[i]
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "date":
			obs.Date = value
		case "title":
			obs.Title = value
		case "url":
			obs.URL = value
		case "explanation":
			obs.Explanation = value
		case "media_type":
			obs.MediaType = value
		case "copyright":
			obs.Copyright = value
		case "ingestion_timestamp":
			obs.IngestionTimestamp = value
		}
	}
	if strings.TrimSpace(obs.Date) == "" {
		return Observation{}, ErrMissingDate
	}
	return obs, nil
}

func validateDate(value string) error {
	if value == "" {
		return ErrMissingDate
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return fmt.Errorf("invalid date %q: %w", value, err)
	}
	return nil
}

func clean(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
