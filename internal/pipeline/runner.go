package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"apodpipe/internal/config"
	"apodpipe/internal/logging"
	"apodpipe/internal/notifications"
	"apodpipe/internal/runlog"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
	"apodpipe/internal/stageexec"
	"apodpipe/internal/steps"
)

// ErrRunInProgress reports that another process holds the run lock.
var ErrRunInProgress = errors.New("another apodpipe run is in progress")

// AcquireLock takes the single-run lock for cfg without blocking. Callers
// that mutate the run ledger outside a run hold it too.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrRunInProgress, cfg.LockPath())
	}
	return lock, nil
}

// Runner executes pipeline runs against one configuration.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	ledger   *runlog.Store
	notifier notifications.Service
	handlers []stage.Handler
	closers  []io.Closer
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Options selects what a single run does.
type Options struct {
	Request stage.Request
	// Until stops the run after the named step. Empty runs every step.
	Until string
	// Retries overrides pipeline.retries when non-nil.
	Retries *int
}

// Result describes a finished run.
type Result struct {
	Run   *runlog.Run
	State *stage.RunState
}

// Handlers returns the configured steps in execution order.
func (r *Runner) Handlers() []stage.Handler {
	return slices.Clone(r.handlers)
}

// Ledger exposes the run ledger for inspection commands.
func (r *Runner) Ledger() *runlog.Store {
	return r.ledger
}

// Close releases the ledger and the database connection.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Health reports the readiness of every step.
func (r *Runner) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.HealthCheck(ctx))
	}
	return out
}

// ValidateUntil checks that step names a pipeline step. Empty is valid.
func ValidateUntil(step string) error {
	step = strings.TrimSpace(step)
	if step == "" || slices.Contains(steps.Order, step) {
		return nil
	}
	return fmt.Errorf("unknown step %q (expected one of %s)", step, strings.Join(steps.Order, ", "))
}

// Run executes one pipeline run. The returned Result is non-nil whenever a
// ledger entry was created, including for failed runs.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	until := strings.TrimSpace(opts.Until)
	if err := ValidateUntil(until); err != nil {
		return nil, err
	}
	retries := r.cfg.Pipeline.Retries
	if opts.Retries != nil {
		retries = max(*opts.Retries, 0)
	}

	lock, err := AcquireLock(r.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	if stale, err := r.ledger.MarkStaleRunning(ctx); err != nil {
		r.logger.Warn("failed to reconcile interrupted runs", logging.Error(err))
	} else if stale > 0 {
		logging.WarnWithContext(r.logger, "marked interrupted runs as failed", "stale_runs",
			logging.Int64("count", stale),
			logging.String(logging.FieldErrorHint, "a previous run exited without finishing"),
			logging.String(logging.FieldImpact, "those runs may have left partial data; this run converges it"),
		)
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	run := &runlog.Run{ID: runID, Status: runlog.StatusRunning, StartedAt: r.now().UTC()}
	if err := r.ledger.Begin(ctx, run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	state := &stage.RunState{RunID: runID, Request: opts.Request, Now: r.now}
	result := &Result{Run: run, State: state}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("request", opts.Request.Label()),
		logging.String("until", until),
		logging.Int("retries", retries),
	)

	for _, handler := range r.handlers {
		err := stageexec.Run(ctx, stageexec.Options{
			Logger:  r.logger,
			Ledger:  r.ledger,
			Run:     run,
			Handler: handler,
			State:   state,
			Retries: retries,
			Delay:   r.cfg.RetryDelay(),
			Timeout: r.cfg.StepTimeout(),
			Sleep:   r.sleep,
		})
		if err != nil {
			r.finish(ctx, logger, run, runlog.StatusFailed)
			logger.Error("run failed",
				logging.String(logging.FieldEventType, "run_failed"),
				logging.String("failed_step", handler.Name()),
				logging.String("error_kind", services.Kind(err)),
				logging.Duration("elapsed", run.Duration()),
				logging.Error(err),
			)
			if notifyErr := r.notifier.NotifyRunFailed(context.WithoutCancel(ctx), runID, handler.Name(), err); notifyErr != nil {
				logger.Debug("failure notification failed", logging.Error(notifyErr))
			}
			return result, err
		}
		if handler.Name() == until {
			logger.Info("stopping after requested step", logging.String("until", until))
			break
		}
	}

	r.finish(ctx, logger, run, runlog.StatusSucceeded)
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("dates", run.DateSpan()),
		logging.Int("inserted", state.Inserted),
		logging.Int("skipped", state.Skipped),
		logging.Int("csv_rows", state.CSVRows),
		logging.Bool("committed", state.Committed),
		logging.Duration("elapsed", run.Duration()),
	)
	summary := notifications.RunSummary{
		RunID:     runID,
		Dates:     run.Dates,
		Inserted:  state.Inserted,
		Skipped:   state.Skipped,
		CSVRows:   state.CSVRows,
		Committed: state.Committed,
		Duration:  run.Duration(),
	}
	if err := r.notifier.NotifyRunCompleted(ctx, summary); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
	return result, nil
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, run *runlog.Run, status runlog.Status) {
	run.Status = status
	run.FinishedAt = r.now().UTC()
	if status == runlog.StatusSucceeded {
		run.ErrorKind = ""
		run.ErrorMessage = ""
	}
	if err := r.ledger.Update(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run outcome", logging.Error(err))
	}
}
