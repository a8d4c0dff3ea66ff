// Package testsupport provides shared fixtures for apodpipe tests: temp-dir
// configurations, an APOD API stand-in, and a scripted dvc/git executor.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"apodpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options, and validates the
// result.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.APOD.APIKey = "test-key"
	cfgVal.APOD.RequestsPerMinute = 6000
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.CSVFile = filepath.Join(base, "data", "apod_data.csv")
	cfgVal.Paths.RepoDir = filepath.Join(base, "repo")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.DSN = filepath.Join(base, "data", "apod.db")
	cfgVal.Pipeline.RetryDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithAPIBaseURL points the APOD client at url (usually an httptest server).
func WithAPIBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.APOD.BaseURL = url
	}
}

// WithRetries sets the number of extra attempts per step.
func WithRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Retries = n
	}
}

// WithCSVInRepo stores the CSV inside the repository so it is versioned in place.
func WithCSVInRepo() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.CSVFile = filepath.Join(b.cfg.Paths.RepoDir, "apod_data.csv")
	}
}

// WithMutation applies an arbitrary change to the config.
func WithMutation(mutate func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		mutate(b.cfg)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, dvc and git are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"dvc", "git"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
