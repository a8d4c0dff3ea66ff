package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPOD(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateVersioning(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPOD() error {
	if c.APOD.APIKey == "" {
		return errors.New("apod.api_key is required (set NASA_API_KEY or use DEMO_KEY)")
	}
	parsed, err := url.Parse(c.APOD.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("apod.base_url must be an absolute URL, got %q", c.APOD.BaseURL)
	}
	return ensurePositiveMap(map[string]int{
		"apod.timeout_seconds":     c.APOD.TimeoutSeconds,
		"apod.range_window_days":   c.APOD.RangeWindowDays,
		"apod.requests_per_minute": c.APOD.RequestsPerMinute,
	})
}

func (c *Config) validatePaths() error {
	for key, value := range map[string]string{
		"paths.data_dir":  c.Paths.DataDir,
		"paths.csv_file":  c.Paths.CSVFile,
		"paths.repo_dir":  c.Paths.RepoDir,
		"paths.state_dir": c.Paths.StateDir,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if !strings.HasSuffix(strings.ToLower(c.Paths.CSVFile), ".csv") {
		return fmt.Errorf("paths.csv_file must name a .csv file, got %q", c.Paths.CSVFile)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set for driver %q (or set APODPIPE_DATABASE_DSN)", c.Database.Driver)
	}
	if !identifierPattern.MatchString(c.Database.Table) {
		return fmt.Errorf("database.table %q is not a valid SQL identifier", c.Database.Table)
	}
	return nil
}

func (c *Config) validateVersioning() error {
	if c.Versioning.GitUserEmail != "" && !strings.Contains(c.Versioning.GitUserEmail, "@") {
		return fmt.Errorf("versioning.git_user_email %q is not an email address", c.Versioning.GitUserEmail)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Retries < 0 {
		return errors.New("pipeline.retries must be >= 0")
	}
	if c.Pipeline.RetryDelaySeconds < 0 {
		return errors.New("pipeline.retry_delay_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
