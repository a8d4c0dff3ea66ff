package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"apodpipe/internal/config"
	"apodpipe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckAPIKey(t *testing.T) {
	cases := []struct {
		key     string
		passed  bool
		warning bool
		detail  string
	}{
		{"", false, false, "missing"},
		{"DEMO_KEY", true, true, "rate limited"},
		{"abc", true, false, "configured"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		cfg.APOD.APIKey = tc.key
		result := CheckAPIKey(&cfg)
		if result.Passed != tc.passed || result.Warning != tc.warning || !strings.Contains(result.Detail, tc.detail) {
			t.Errorf("CheckAPIKey(%q) = %+v", tc.key, result)
		}
	}
}

func TestCheckBinariesMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Versioning.DVCBinary = "apodpipe-missing-dvc"
	results := CheckBinaries(&cfg)
	if len(results) != 2 {
		t.Fatalf("expected dvc and git results, got %d", len(results))
	}
	if results[0].Passed {
		t.Fatalf("expected missing dvc to fail, got %+v", results[0])
	}
}

func TestCheckDatabaseSQLite(t *testing.T) {
	result := CheckDatabase(context.Background(), config.Database{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "apod.db"),
		Table:  "nasa_apod_data",
	})
	if !result.Passed {
		t.Fatalf("expected sqlite check to pass, got %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReadyConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	// api key + dvc + git + three directories + database
	if len(results) != 7 {
		t.Fatalf("expected 7 results, got %d: %+v", len(results), results)
	}
	if results[0].Name != "APOD API key" {
		t.Fatalf("expected stable ordering, got %q first", results[0].Name)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ReportsMissingDirectories(t *testing.T) {
	dbDir := t.TempDir()
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithMutation(func(c *config.Config) { c.Database.DSN = filepath.Join(dbDir, "apod.db") }),
	)
	results := RunAll(context.Background(), cfg)
	failed := Failed(results)
	if len(failed) != 3 {
		t.Fatalf("expected the three directory checks to fail, got %+v", failed)
	}
}
