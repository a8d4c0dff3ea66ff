// Package csvstore keeps the flat-file copy of the APOD table.
//
// The file always carries a header row in record.Columns order and at most one
// row per date. Upsert only appends dates the file does not hold yet; a row
// once written is never rewritten.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"apodpipe/internal/fileutil"
	"apodpipe/internal/record"
)

// Store reads and rewrites one CSV file.
type Store struct {
	path string
}

// New returns a store bound to path. The file is created on first Upsert.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("csv path required")
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ReadAll parses the file into observations. A missing file yields no rows.
func (s *Store) ReadAll() ([]record.Observation, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []record.Observation
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		obs, err := record.ParseRow(header, fields)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", line, err)
		}
		rows = append(rows, obs)
	}
	return rows, nil
}

// UpsertResult summarizes one Upsert call.
type UpsertResult struct {
	Rows    int
	Added   int
	Skipped int
	Created bool
}

// Upsert appends the records whose date is not yet in the file and rewrites
// it atomically. Rows already present are never modified, so re-running a
// date leaves the file byte-identical.
func (s *Store) Upsert(records []record.Observation) (UpsertResult, error) {
	existing, err := s.ReadAll()
	if err != nil {
		return UpsertResult{}, err
	}
	_, statErr := os.Stat(s.path)
	created := errors.Is(statErr, fs.ErrNotExist)

	known := make(map[string]struct{}, len(existing))
	for _, obs := range existing {
		known[obs.Date] = struct{}{}
	}
	result := UpsertResult{Created: created}
	for _, obs := range records {
		if _, ok := known[obs.Date]; ok {
			result.Skipped++
			continue
		}
		known[obs.Date] = struct{}{}
		result.Added++
	}

	merged := Dedupe(append(existing, records...))
	result.Rows = len(merged)
	if !created && result.Added == 0 && len(merged) == len(existing) {
		return result, nil
	}
	if err := s.write(merged); err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// Dedupe keeps the first occurrence of each date, in first-occurrence order.
func Dedupe(rows []record.Observation) []record.Observation {
	seen := make(map[string]struct{}, len(rows))
	out := make([]record.Observation, 0, len(rows))
	for _, obs := range rows {
		if _, ok := seen[obs.Date]; ok {
			continue
		}
		seen[obs.Date] = struct{}{}
		out = append(out, obs)
	}
	return out
}

func (s *Store) write(rows []record.Observation) error {
	err := fileutil.WriteFileAtomic(s.path, 0o644, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(record.Columns()); err != nil {
			return err
		}
		for _, obs := range rows {
			if err := writer.Write(obs.Values()); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
