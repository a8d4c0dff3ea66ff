package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"apodpipe/internal/config"
	"apodpipe/internal/record"
	"apodpipe/internal/services"
	"apodpipe/internal/sqlitedb"
)

// Row is a stored observation with its surrogate key and insert time.
type Row struct {
	ID int64
	record.Observation
	CreatedAt string
}

// LoadResult summarizes one Load call.
type LoadResult struct {
	Inserted      int
	Skipped       int
	InsertedDates []string
}

// Warehouse writes observations to one relational table.
type Warehouse struct {
	db      *sql.DB
	dialect dialect
	table   string
	quoted  string
}

// Open connects to the configured database. The schema is not touched until
// EnsureSchema is called.
func Open(cfg config.Database) (*Warehouse, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if !ValidIdentifier(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn required")
	}

	var db *sql.DB
	if d.name == config.DriverSQLite {
		db, err = sqlitedb.Open(cfg.DSN)
	} else {
		db, err = sql.Open(d.driver, cfg.DSN)
	}
	if err != nil {
		return nil, err
	}
	return &Warehouse{db: db, dialect: d, table: cfg.Table, quoted: d.quote(cfg.Table)}, nil
}

// Close closes the underlying connection pool.
func (w *Warehouse) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Driver returns the dialect name.
func (w *Warehouse) Driver() string {
	return w.dialect.name
}

// Table returns the target table name.
func (w *Warehouse) Table() string {
	return w.table
}

// Ping verifies the database is reachable.
func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", w.dialect.name, err)
	}
	return nil
}

// EnsureSchema creates the table and its unique date index when missing.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	return w.retry(ctx, func() error {
		if _, err := w.db.ExecContext(ctx, fmt.Sprintf(w.dialect.createTable, w.quoted)); err != nil {
			return fmt.Errorf("create table %s: %w", w.table, err)
		}
		index := w.dialect.quote(w.table + "_date_key")
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (date)", index, w.quoted)
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			if date, ok := w.duplicateDate(ctx); ok {
				return services.Wrap(services.ErrConfiguration, "warehouse", "create date index",
					fmt.Sprintf("table %s holds more than one row for %s; deduplicate it by date before loading", w.table, date), err)
			}
			return fmt.Errorf("create date index on %s: %w", w.table, err)
		}
		return nil
	})
}

// duplicateDate returns one date stored more than once. Tables created
// without the unique index can hold such rows.
func (w *Warehouse) duplicateDate(ctx context.Context) (string, bool) {
	var date sql.NullString
	query := fmt.Sprintf("SELECT date FROM %s GROUP BY date HAVING COUNT(*) > 1 LIMIT 1", w.quoted)
	if err := w.db.QueryRowContext(ctx, query).Scan(&date); err != nil {
		return "", false
	}
	return date.String, true
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w *Warehouse) insertStatement() string {
	cols := record.Columns()
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (date) DO NOTHING",
		w.quoted,
		strings.Join(cols, ", "),
		w.dialect.placeholders(len(cols)),
	)
}

func (w *Warehouse) insert(ctx context.Context, exec execer, stmt string, obs record.Observation) (bool, error) {
	values := obs.Values()
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	// An empty timestamp would be rejected by a TIMESTAMP column.
	if obs.IngestionTimestamp == "" {
		args[len(args)-1] = nil
	}
	res, err := exec.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", obs.Date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertIfAbsent inserts obs unless a row with the same date exists.
func (w *Warehouse) InsertIfAbsent(ctx context.Context, obs record.Observation) (bool, error) {
	var inserted bool
	err := w.retry(ctx, func() error {
		var err error
		inserted, err = w.insert(ctx, w.db, w.insertStatement(), obs)
		return err
	})
	return inserted, err
}

// Load inserts records in one transaction, skipping dates already present.
func (w *Warehouse) Load(ctx context.Context, records []record.Observation) (LoadResult, error) {
	var result LoadResult
	err := w.retry(ctx, func() error {
		result = LoadResult{}
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin load tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt := w.insertStatement()
		for _, obs := range records {
			inserted, err := w.insert(ctx, tx, stmt, obs)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
				result.InsertedDates = append(result.InsertedDates, obs.Date)
			} else {
				result.Skipped++
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit load tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, err
	}
	return result, nil
}

// Count returns the number of stored rows.
func (w *Warehouse) Count(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.quoted).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", w.table, err)
	}
	return n, nil
}

// Has reports whether a row exists for date.
func (w *Warehouse) Has(ctx context.Context, date string) (bool, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE date = %s", w.quoted, w.dialect.placeholder(1))
	if err := w.db.QueryRowContext(ctx, query, date).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup %s: %w", date, err)
	}
	return n > 0, nil
}

// List returns up to limit rows, newest date first. A non-positive limit
// returns every row.
func (w *Warehouse) List(ctx context.Context, limit int) ([]Row, error) {
	query := fmt.Sprintf(
		"SELECT id, %s, created_at FROM %s ORDER BY date DESC",
		strings.Join(record.Columns(), ", "),
		w.quoted,
	)
	var args []any
	if limit > 0 {
		query += " LIMIT " + w.dialect.placeholder(1)
		args = append(args, limit)
	}
	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", w.table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanRow(scanner interface{ Scan(dest ...any) error }) (Row, error) {
	var (
		row       Row
		date      sql.NullString
		title     sql.NullString
		url       sql.NullString
		expl      sql.NullString
		mediaType sql.NullString
		copyright sql.NullString
		ingested  sql.NullString
		created   sql.NullString
	)
	if err := scanner.Scan(&row.ID, &date, &title, &url, &expl, &mediaType, &copyright, &ingested, &created); err != nil {
		return Row{}, fmt.Errorf("scan row: %w", err)
	}
	row.Observation = record.Observation{
		Date:               date.String,
		Title:              title.String,
		URL:                url.String,
		Explanation:        expl.String,
		MediaType:          mediaType.String,
		Copyright:          copyright.String,
		IngestionTimestamp: ingested.String,
	}
	row.CreatedAt = created.String
	return row, nil
}

func (w *Warehouse) retry(ctx context.Context, op func() error) error {
	if w.dialect.name != config.DriverSQLite {
		return op()
	}
	return sqlitedb.RetryOnBusy(ctx, op)
}
