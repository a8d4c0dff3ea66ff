package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"apodpipe/internal/apod"
	"apodpipe/internal/cmdexec"
	"apodpipe/internal/config"
	"apodpipe/internal/csvstore"
	"apodpipe/internal/dvc"
	"apodpipe/internal/gitrepo"
	"apodpipe/internal/logging"
	"apodpipe/internal/notifications"
	"apodpipe/internal/runlog"
	"apodpipe/internal/stage"
	"apodpipe/internal/steps"
	"apodpipe/internal/warehouse"
)

// Option customizes how New wires the runner.
type Option func(*settings)

type settings struct {
	exec       cmdexec.Executor
	httpClient *http.Client
	notifier   notifications.Service
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithExecutor runs dvc and git through exec instead of os/exec.
func WithExecutor(exec cmdexec.Executor) Option {
	return func(s *settings) { s.exec = exec }
}

// WithHTTPClient sends APOD requests through client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// WithNotifier replaces the configured notification service.
func WithNotifier(n notifications.Service) Option {
	return func(s *settings) { s.notifier = n }
}

// WithClock overrides the time source used for ingestion timestamps and
// commit messages.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithSleep overrides the wait between step attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) { s.sleep = sleep }
}

// New opens the run ledger and the sinks and builds the five steps from cfg.
// Close releases everything New opened.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		logger: logger,
		now:    s.now,
		sleep:  s.sleep,
	}
	if r.now == nil {
		r.now = time.Now
	}

	ledger, err := runlog.Open(cfg.RunLedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	r.ledger = ledger
	r.closers = append(r.closers, ledger)

	handlers, closers, err := buildSteps(cfg, logger, s)
	r.closers = append(r.closers, closers...)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.handlers = handlers

	r.notifier = s.notifier
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r, nil
}

func buildSteps(cfg *config.Config, logger *slog.Logger, s settings) ([]stage.Handler, []io.Closer, error) {
	fetcher, err := apod.New(cfg.APOD.APIKey, cfg.APOD.BaseURL,
		apod.WithTimeout(time.Duration(cfg.APOD.TimeoutSeconds)*time.Second),
		apod.WithHTTPClient(s.httpClient),
		apod.WithRequestsPerMinute(cfg.APOD.RequestsPerMinute),
		apod.WithWindowDays(cfg.APOD.RangeWindowDays),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("apod client: %w", err)
	}

	table, err := warehouse.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closers := []io.Closer{table}

	file, err := csvstore.New(cfg.Paths.CSVFile)
	if err != nil {
		return nil, closers, fmt.Errorf("csv store: %w", err)
	}

	tracker, err := dvc.New(cfg.Versioning.DVCBinary, cfg.Paths.RepoDir,
		dvc.WithExecutor(s.exec),
		dvc.WithTimeout(cfg.CommandTimeout()),
		dvc.WithLogger(logging.NewComponentLogger(logger, "dvc")),
	)
	if err != nil {
		return nil, closers, err
	}

	repo, err := gitrepo.New(cfg.Versioning.GitBinary, cfg.Paths.RepoDir,
		gitrepo.WithExecutor(s.exec),
		gitrepo.WithIdentity(cfg.Versioning.GitUserName, cfg.Versioning.GitUserEmail),
		gitrepo.WithTimeout(cfg.CommandTimeout()),
		gitrepo.WithLogger(logging.NewComponentLogger(logger, "git")),
	)
	if err != nil {
		return nil, closers, err
	}

	fileName := cfg.RepoCSVName()
	handlers := []stage.Handler{
		steps.NewExtract(fetcher, logger),
		steps.NewTransform(logger),
		steps.NewLoad(table, file, logger),
		steps.NewVersion(tracker, repo, fileName, cfg.Versioning.DVCBinary, logger),
		steps.NewCommit(repo, fileName, cfg.Versioning.GitBinary, cfg.Versioning.StrictCommit, logger),
	}
	return handlers, closers, nil
}
