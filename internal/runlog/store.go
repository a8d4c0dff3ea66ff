package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"apodpipe/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear the ledger after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the ledger schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const runColumns = "id, status, step, attempts, dates, rows_inserted, rows_skipped, csv_rows, tracked_md5, commit_hash, error_kind, error_message, started_at, updated_at, finished_at"

// Store manages run ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at path.
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: ledger has version %d, expected %d (run 'apodpipe history clear' or delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return sqlitedb.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	})
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// Begin records a new running run. StartedAt defaults to now.
func (s *Store) Begin(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id required")
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Status),
		nullableString(run.Step),
		run.Attempts,
		nullableString(joinDates(run.Dates)),
		run.RowsInserted,
		run.RowsSkipped,
		run.CSVRows,
		nullableString(run.TrackedMD5),
		nullableString(run.CommitHash),
		nullableString(run.ErrorKind),
		nullableString(run.ErrorMessage),
		formatTime(run.StartedAt),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update persists the mutable fields of an existing run.
func (s *Store) Update(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id required")
	}
	run.UpdatedAt = time.Now().UTC()
	res, err := s.exec(ctx,
		`UPDATE runs
         SET status = ?, step = ?, attempts = ?, dates = ?, rows_inserted = ?, rows_skipped = ?,
             csv_rows = ?, tracked_md5 = ?, commit_hash = ?, error_kind = ?, error_message = ?,
             updated_at = ?, finished_at = ?
         WHERE id = ?`,
		string(run.Status),
		nullableString(run.Step),
		run.Attempts,
		nullableString(joinDates(run.Dates)),
		run.RowsInserted,
		run.RowsSkipped,
		run.CSVRows,
		nullableString(run.TrackedMD5),
		nullableString(run.CommitHash),
		nullableString(run.ErrorKind),
		nullableString(run.ErrorMessage),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: not found", run.ID)
	}
	return nil
}

// Get fetches a run by identifier. A missing run returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, most recent first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkStaleRunning fails every run still marked running. Callers hold the
// run lock, so no live run can be affected.
func (s *Store) MarkStaleRunning(ctx context.Context) (int64, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status = ?`,
		string(StatusFailed), "interrupted", CrashedRunReason, now, now, string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale runs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every run from the ledger.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		step        sql.NullString
		dates       sql.NullString
		trackedMD5  sql.NullString
		commitHash  sql.NullString
		errorKind   sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		updatedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&status,
		&step,
		&run.Attempts,
		&dates,
		&run.RowsInserted,
		&run.RowsSkipped,
		&run.CSVRows,
		&trackedMD5,
		&commitHash,
		&errorKind,
		&errorMsg,
		&startedRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.Step = step.String
	run.Dates = splitDates(dates.String)
	run.TrackedMD5 = trackedMD5.String
	run.CommitHash = commitHash.String
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMsg.String
	run.StartedAt = parseTime(startedRaw)
	run.UpdatedAt = parseTime(updatedRaw)
	if finishedRaw.Valid {
		run.FinishedAt = parseTime(finishedRaw.String)
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
