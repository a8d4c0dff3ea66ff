package warehouse_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"apodpipe/internal/config"
	"apodpipe/internal/record"
	"apodpipe/internal/services"
	"apodpipe/internal/sqlitedb"
	"apodpipe/internal/warehouse"
)

func openSQLite(t *testing.T) *warehouse.Warehouse {
	t.Helper()
	wh, err := warehouse.Open(config.Database{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "apod.db"),
		Table:  "nasa_apod_data",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = wh.Close() })
	if err := wh.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return wh
}

func sample(date string) record.Observation {
	return record.Observation{
		Date:               date,
		Title:              "Title " + date,
		URL:                "https://apod.nasa.gov/" + date,
		Explanation:        "Explanation",
		MediaType:          "image",
		Copyright:          "",
		IngestionTimestamp: "2024-01-01T00:00:00Z",
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	wh := openSQLite(t)
	if err := wh.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestInsertIfAbsentSkipsExistingDate(t *testing.T) {
	ctx := context.Background()
	wh := openSQLite(t)

	inserted, err := wh.InsertIfAbsent(ctx, sample("2024-01-01"))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to write a row")
	}
	inserted, err = wh.InsertIfAbsent(ctx, sample("2024-01-01"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("expected second insert to be skipped")
	}
	count, err := wh.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestLoadReportsInsertedAndSkipped(t *testing.T) {
	ctx := context.Background()
	wh := openSQLite(t)

	first, err := wh.Load(ctx, []record.Observation{sample("2024-01-01"), sample("2024-01-02")})
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if first.Inserted != 2 || first.Skipped != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := wh.Load(ctx, []record.Observation{sample("2024-01-02"), sample("2024-01-03")})
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if second.Inserted != 1 || second.Skipped != 1 {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if diff := cmp.Diff([]string{"2024-01-03"}, second.InsertedDates); diff != "" {
		t.Fatalf("inserted dates mismatch (-want +got):\n%s", diff)
	}

	has, err := wh.Has(ctx, "2024-01-03")
	if err != nil || !has {
		t.Fatalf("expected 2024-01-03 to be present (err=%v)", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	wh := openSQLite(t)
	if _, err := wh.Load(ctx, []record.Observation{sample("2024-01-01"), sample("2024-01-03"), sample("2024-01-02")}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	rows, err := wh.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	got := []record.Observation{rows[0].Observation, rows[1].Observation}
	want := []record.Observation{sample("2024-01-03"), sample("2024-01-02")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if rows[0].ID == 0 || rows[0].CreatedAt == "" {
		t.Fatalf("expected id and created_at, got %+v", rows[0])
	}

	all, err := wh.List(ctx, 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 rows, got %d", len(all))
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Database
	}{
		{"driver", config.Database{Driver: "mysql", DSN: "x", Table: "t"}},
		{"table", config.Database{Driver: config.DriverSQLite, DSN: "x.db", Table: "t; DROP TABLE t"}},
		{"dsn", config.Database{Driver: config.DriverPostgres, DSN: " ", Table: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if wh, err := warehouse.Open(tc.cfg); err == nil {
				_ = wh.Close()
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	for name, want := range map[string]bool{
		"nasa_apod_data": true,
		"_private":       true,
		"9lives":         false,
		"has-dash":       false,
		"":               false,
	} {
		if got := warehouse.ValidIdentifier(name); got != want {
			t.Fatalf("ValidIdentifier(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("APODPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("APODPIPE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	wh, err := warehouse.Open(config.Database{Driver: config.DriverPostgres, DSN: dsn, Table: "apodpipe_test_rows"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = wh.Close() })
	if err := wh.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := wh.Load(ctx, []record.Observation{sample("1999-12-31")}); err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
	}
	has, err := wh.Has(ctx, "1999-12-31")
	if err != nil || !has {
		t.Fatalf("expected row to exist (err=%v)", err)
	}
}

func TestEnsureSchemaReportsPreexistingDuplicateDates(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sqlitedb.Open(dsn)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE nasa_apod_data (id INTEGER PRIMARY KEY AUTOINCREMENT, date TEXT, title TEXT)`,
		`INSERT INTO nasa_apod_data (date, title) VALUES ('2024-01-01', 'first'), ('2024-01-01', 'again')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed legacy table: %v", err)
		}
	}
	_ = db.Close()

	wh, err := warehouse.Open(config.Database{Driver: config.DriverSQLite, DSN: dsn, Table: "nasa_apod_data"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = wh.Close() })

	err = wh.EnsureSchema(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("duplicate dates must not be retried")
	}
	if !strings.Contains(err.Error(), "2024-01-01") || !strings.Contains(err.Error(), "deduplicate") {
		t.Fatalf("expected a dedupe hint naming the date, got %v", err)
	}
}
