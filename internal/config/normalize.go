package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPOD()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeVersioning()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeAPOD() {
	c.APOD.APIKey = strings.TrimSpace(c.APOD.APIKey)
	if c.APOD.APIKey == "" {
		if value, ok := os.LookupEnv("NASA_API_KEY"); ok {
			c.APOD.APIKey = strings.TrimSpace(value)
		}
	}
	if c.APOD.APIKey == "" {
		c.APOD.APIKey = defaultAPODAPIKey
	}
	c.APOD.BaseURL = strings.TrimRight(strings.TrimSpace(c.APOD.BaseURL), "/")
	if c.APOD.BaseURL == "" {
		c.APOD.BaseURL = defaultAPODBaseURL
	}
	if c.APOD.TimeoutSeconds <= 0 {
		c.APOD.TimeoutSeconds = defaultAPODTimeoutSeconds
	}
	if c.APOD.RangeWindowDays <= 0 {
		c.APOD.RangeWindowDays = defaultAPODRangeWindowDays
	}
	if c.APOD.RequestsPerMinute <= 0 {
		c.APOD.RequestsPerMinute = defaultAPODRequestsPerMin
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CSVFile) == "" {
		c.Paths.CSVFile = filepath.Join(c.Paths.DataDir, defaultCSVFileName)
	}
	if c.Paths.CSVFile, err = expandPath(c.Paths.CSVFile); err != nil {
		return fmt.Errorf("paths.csv_file: %w", err)
	}
	if c.Paths.RepoDir, err = expandPath(c.Paths.RepoDir); err != nil {
		return fmt.Errorf("paths.repo_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = DriverSQLite
	case "postgresql", "pg":
		c.Database.Driver = DriverPostgres
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("APODPIPE_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = filepath.Join(c.Paths.DataDir, defaultSQLiteFileName)
	}
	c.Database.Table = strings.TrimSpace(c.Database.Table)
	if c.Database.Table == "" {
		c.Database.Table = defaultTable
	}
}

func (c *Config) normalizeVersioning() {
	c.Versioning.DVCBinary = strings.TrimSpace(c.Versioning.DVCBinary)
	if c.Versioning.DVCBinary == "" {
		c.Versioning.DVCBinary = defaultDVCBinary
	}
	c.Versioning.GitBinary = strings.TrimSpace(c.Versioning.GitBinary)
	if c.Versioning.GitBinary == "" {
		c.Versioning.GitBinary = defaultGitBinary
	}
	c.Versioning.GitUserName = strings.TrimSpace(c.Versioning.GitUserName)
	if c.Versioning.GitUserName == "" {
		c.Versioning.GitUserName = defaultGitUserName
	}
	c.Versioning.GitUserEmail = strings.TrimSpace(c.Versioning.GitUserEmail)
	if c.Versioning.GitUserEmail == "" {
		c.Versioning.GitUserEmail = defaultGitUserEmail
	}
	if c.Versioning.CommandTimeoutSeconds <= 0 {
		c.Versioning.CommandTimeoutSeconds = defaultCommandTimeout
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.StepTimeoutSeconds < 0 {
		c.Pipeline.StepTimeoutSeconds = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
