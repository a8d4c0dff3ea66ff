package steps

import (
	"context"
	"log/slog"
	"strings"

	"apodpipe/internal/dvc"
	"apodpipe/internal/gitrepo"
	"apodpipe/internal/logging"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
)

// Committer records repository-relative paths in version control.
type Committer interface {
	CommitPaths(ctx context.Context, message string, paths ...string) (gitrepo.CommitResult, error)
}

// Commit commits the DVC metadata file and the .gitignore dvc maintains.
// Unless strict, a failed commit is logged and the run still succeeds.
type Commit struct {
	committer Committer
	fileName  string
	binary    string
	strict    bool
	logger    *slog.Logger
}

// NewCommit builds the commit step for the CSV named fileName.
func NewCommit(committer Committer, fileName, binary string, strict bool, logger *slog.Logger) *Commit {
	c := &Commit{committer: committer, fileName: fileName, binary: binary, strict: strict}
	c.SetLogger(logger)
	return c
}

func (c *Commit) Name() string { return NameCommit }

// SetLogger implements stage.LoggerAware.
func (c *Commit) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, NameCommit)
}

func (c *Commit) Prepare(_ context.Context, state *stage.RunState) error {
	if c.committer == nil {
		return services.Wrap(services.ErrConfiguration, NameCommit, "prepare", "git client unavailable", nil)
	}
	if strings.TrimSpace(state.MetadataPath) == "" {
		return services.Wrap(services.ErrValidation, NameCommit, "prepare", "no DVC metadata received from version step", nil)
	}
	return nil
}

// Paths lists the repository-relative paths the commit step stages.
func (c *Commit) Paths() []string {
	return []string{c.fileName + dvc.MetadataSuffix, ".gitignore"}
}

func (c *Commit) Execute(ctx context.Context, state *stage.RunState) error {
	message := gitrepo.CommitMessage(state.Clock())
	result, err := c.committer.CommitPaths(ctx, message, c.Paths()...)
	if err != nil {
		if c.strict {
			return services.Wrap(services.ErrExternalTool, NameCommit, "git commit", "", err)
		}
		state.CommitWarning = err.Error()
		logging.WarnWithContext(c.logger, "git commit failed", "commit_failed",
			logging.String(logging.FieldErrorHint, "commit the metadata by hand or set versioning.strict_commit"),
			logging.String(logging.FieldImpact, "data is versioned by dvc but not committed"),
			logging.Error(err),
		)
		return nil
	}

	state.Committed = result.Committed
	state.CommitHash = result.Hash
	if !result.Committed {
		c.logger.Info("no metadata changes to commit", logging.String("paths", strings.Join(result.Paths, ",")))
		return nil
	}
	c.logger.Info("committed DVC metadata",
		logging.String("commit", result.Hash),
		logging.String("message", message),
	)
	return nil
}

func (c *Commit) HealthCheck(context.Context) stage.Health {
	return binaryHealth(NameCommit, "git", c.binary)
}
