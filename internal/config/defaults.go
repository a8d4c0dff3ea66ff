package config

const (
	defaultAPODBaseURL          = "https://api.nasa.gov"
	defaultAPODAPIKey           = "DEMO_KEY"
	defaultAPODTimeoutSeconds   = 30
	defaultAPODRangeWindowDays  = 30
	defaultAPODRequestsPerMin   = 30
	defaultDataDir              = "~/.local/share/apodpipe/data"
	defaultCSVFileName          = "apod_data.csv"
	defaultRepoDir              = "~/.local/share/apodpipe/dvc_repo"
	defaultStateDir             = "~/.local/share/apodpipe/state"
	defaultLogDir               = "~/.local/share/apodpipe/logs"
	defaultDatabaseDriver       = DriverSQLite
	defaultSQLiteFileName       = "apod.db"
	defaultTable                = "nasa_apod_data"
	defaultDVCBinary            = "dvc"
	defaultGitBinary            = "git"
	defaultGitUserName          = "apodpipe"
	defaultGitUserEmail         = "apodpipe@localhost"
	defaultCommandTimeout       = 300
	defaultPipelineRetries      = 1
	defaultPipelineRetryDelay   = 300
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Supported database drivers for the relational sink.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		APOD: APOD{
			APIKey:            "",
			BaseURL:           defaultAPODBaseURL,
			TimeoutSeconds:    defaultAPODTimeoutSeconds,
			RangeWindowDays:   defaultAPODRangeWindowDays,
			RequestsPerMinute: defaultAPODRequestsPerMin,
		},
		Paths: Paths{
			DataDir:  defaultDataDir,
			RepoDir:  defaultRepoDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
			Table:  defaultTable,
		},
		Versioning: Versioning{
			DVCBinary:             defaultDVCBinary,
			GitBinary:             defaultGitBinary,
			GitUserName:           defaultGitUserName,
			GitUserEmail:          defaultGitUserEmail,
			CommandTimeoutSeconds: defaultCommandTimeout,
		},
		Pipeline: Pipeline{
			Retries:           defaultPipelineRetries,
			RetryDelaySeconds: defaultPipelineRetryDelay,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
