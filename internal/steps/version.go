package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"apodpipe/internal/deps"
	"apodpipe/internal/dvc"
	"apodpipe/internal/fileutil"
	"apodpipe/internal/logging"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
)

// RepoInitializer prepares a repository before the first run.
type RepoInitializer interface {
	EnsureRepo(context.Context) (bool, error)
}

// Tracker versions files inside a DVC repository.
type Tracker interface {
	RepoInitializer
	RepoDir() string
	Add(ctx context.Context, relPath string) (string, error)
}

// Version places the CSV file in the repository, tracks it with DVC, and
// verifies that the recorded hash matches the file.
type Version struct {
	tracker  Tracker
	scm      RepoInitializer
	fileName string
	binary   string
	logger   *slog.Logger
}

// NewVersion builds the version step. scm may be nil when no git repository
// should be prepared. fileName is the CSV name inside the repository.
func NewVersion(tracker Tracker, scm RepoInitializer, fileName, binary string, logger *slog.Logger) *Version {
	v := &Version{tracker: tracker, scm: scm, fileName: fileName, binary: binary}
	v.SetLogger(logger)
	return v
}

func (v *Version) Name() string { return NameVersion }

// SetLogger implements stage.LoggerAware.
func (v *Version) SetLogger(logger *slog.Logger) {
	v.logger = logging.NewComponentLogger(logger, NameVersion)
}

func (v *Version) Prepare(_ context.Context, state *stage.RunState) error {
	if v.tracker == nil {
		return services.Wrap(services.ErrConfiguration, NameVersion, "prepare", "dvc client unavailable", nil)
	}
	if strings.TrimSpace(state.CSVPath) == "" {
		return services.Wrap(services.ErrValidation, NameVersion, "prepare", "no CSV path received from load step", nil)
	}
	if _, err := os.Stat(state.CSVPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrValidation, NameVersion, "prepare", "CSV file missing", err)
		}
		return services.Wrap(services.ErrTransient, NameVersion, "prepare", "stat CSV file", err)
	}
	return nil
}

func (v *Version) Execute(ctx context.Context, state *stage.RunState) error {
	if v.scm != nil {
		if created, err := v.scm.EnsureRepo(ctx); err != nil {
			logging.WarnWithContext(v.logger, "git repository setup failed", "git_init_failed",
				logging.String(logging.FieldErrorHint, "dvc will track the file without git integration"),
				logging.String(logging.FieldImpact, "commit step may fail"),
				logging.Error(err),
			)
		} else if created {
			v.logger.Info("initialized git repository", logging.String("repo", v.tracker.RepoDir()))
		}
	}
	created, err := v.tracker.EnsureRepo(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, NameVersion, "dvc init", "", err)
	}
	if created {
		v.logger.Info("initialized dvc repository", logging.String("repo", v.tracker.RepoDir()))
	}

	repoCSV := filepath.Join(v.tracker.RepoDir(), v.fileName)
	if !fileutil.SamePath(state.CSVPath, repoCSV) {
		if err := fileutil.CopyFileVerified(state.CSVPath, repoCSV); err != nil {
			return services.Wrap(services.ErrTransient, NameVersion, "copy csv", repoCSV, err)
		}
		v.logger.Debug("copied CSV into repository",
			logging.String("source", state.CSVPath),
			logging.String("destination", repoCSV),
		)
	}

	metadataPath, err := v.tracker.Add(ctx, v.fileName)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, NameVersion, "dvc add", v.fileName, err)
	}
	check, err := dvc.Verify(metadataPath, repoCSV)
	if err != nil {
		if errors.Is(err, dvc.ErrHashMismatch) {
			return services.Wrap(services.ErrTransient, NameVersion, "verify", "tracked hash differs from file", err)
		}
		return services.Wrap(services.ErrExternalTool, NameVersion, "verify", "", err)
	}

	state.RepoCSVPath = repoCSV
	state.MetadataPath = metadataPath
	state.TrackedMD5 = check.Tracked.MD5
	v.logger.Info("versioned CSV with dvc",
		logging.String("metadata", metadataPath),
		logging.String("md5", check.Tracked.MD5),
		logging.Int64("size", check.Tracked.Size),
	)
	return nil
}

func (v *Version) HealthCheck(context.Context) stage.Health {
	return binaryHealth(NameVersion, "DVC", v.binary)
}

func binaryHealth(step, name, binary string) stage.Health {
	statuses := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: binary}})
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return stage.Unhealthy(step, fmt.Sprintf("%s: %s", name, missing[0].Detail))
	}
	return stage.Healthy(step)
}
