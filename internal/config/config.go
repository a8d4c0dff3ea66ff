package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// APOD contains configuration for the Astronomy Picture of the Day API.
type APOD struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RangeWindowDays   int    `toml:"range_window_days"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Paths contains the directories and files the pipeline reads and writes.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	CSVFile  string `toml:"csv_file"`
	RepoDir  string `toml:"repo_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Database contains configuration for the relational sink.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Table  string `toml:"table"`
}

// Versioning contains configuration for the DVC and git steps.
type Versioning struct {
	DVCBinary             string `toml:"dvc_binary"`
	GitBinary             string `toml:"git_binary"`
	GitUserName           string `toml:"git_user_name"`
	GitUserEmail          string `toml:"git_user_email"`
	StrictCommit          bool   `toml:"strict_commit"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

// Pipeline contains the step retry policy.
type Pipeline struct {
	Retries            int `toml:"retries"`
	RetryDelaySeconds  int `toml:"retry_delay_seconds"`
	StepTimeoutSeconds int `toml:"step_timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for apodpipe.
//
// Configuration sections by subsystem:
//   - APOD: upstream API endpoint, key, and throttling
//   - Paths: data, DVC repository, state, and log locations
//   - Database: relational sink driver and table
//   - Versioning: dvc/git binaries and commit identity
//   - Pipeline: step retry policy and timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	APOD          APOD          `toml:"apod"`
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Versioning    Versioning    `toml:"versioning"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/apodpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("apodpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		filepath.Dir(c.Paths.CSVFile),
		c.Paths.RepoDir,
		c.Paths.StateDir,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunLedgerPath returns the SQLite file that records pipeline runs.
func (c *Config) RunLedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LockPath returns the lock file guarding against concurrent runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "apodpipe.lock")
}

// LogFilePath returns the file that mirrors console log output.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "apodpipe.log")
}

// RepoCSVName returns the CSV file name as tracked inside the DVC repository.
func (c *Config) RepoCSVName() string {
	return filepath.Base(c.Paths.CSVFile)
}

// RetryDelay returns the pause between step attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryDelaySeconds) * time.Second
}

// StepTimeout returns the per-step deadline, or zero when steps are unbounded.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Pipeline.StepTimeoutSeconds) * time.Second
}

// CommandTimeout returns the deadline applied to each dvc/git invocation.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Versioning.CommandTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
