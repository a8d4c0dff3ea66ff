// Package stageexec runs one pipeline step with the retry, timeout, and
// ledger bookkeeping every step shares.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"apodpipe/internal/logging"
	"apodpipe/internal/runlog"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
)

// Ledger persists run progress between attempts.
type Ledger interface {
	Update(context.Context, *runlog.Run) error
}

// Options controls step execution and ledger persistence behavior.
type Options struct {
	Logger  *slog.Logger
	Ledger  Ledger
	Run     *runlog.Run
	Handler stage.Handler
	State   *stage.RunState

	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Delay is the pause between attempts.
	Delay time.Duration
	// Timeout bounds each attempt; zero leaves attempts unbounded.
	Timeout time.Duration

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(context.Context, time.Duration) error
}

// Run executes a step, retrying retryable failures, and records the outcome
// on the run. The returned error is the last attempt's error.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return errors.New("step handler unavailable")
	}
	if opts.State == nil {
		return errors.New("run state is required")
	}
	if opts.Run == nil {
		return errors.New("run record is required")
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	retries := max(opts.Retries, 0)
	name := opts.Handler.Name()

	stepCtx := services.WithStep(ctx, name)
	opts.Run.Step = name
	opts.Run.Attempts = 0

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		attemptCtx := services.WithAttempt(stepCtx, attempt)
		logger := logging.WithContext(attemptCtx, opts.Logger)
		if aware, ok := opts.Handler.(stage.LoggerAware); ok {
			aware.SetLogger(logger)
		}

		opts.Run.Attempts = attempt
		persist(attemptCtx, logger, opts)

		logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))
		started := time.Now()
		lastErr = runAttempt(attemptCtx, opts.Handler, opts.State, opts.Timeout, name)
		if lastErr == nil {
			syncRun(opts.Run, opts.State)
			persist(attemptCtx, logger, opts)
			logger.Info("step completed",
				logging.String(logging.FieldEventType, "step_complete"),
				logging.Duration("elapsed", time.Since(started)),
			)
			return nil
		}

		retryable := services.Retryable(lastErr) && attempt <= retries && ctx.Err() == nil
		if !retryable {
			logging.ErrorWithContext(logger, "step failed", "step_failed",
				logging.String("error_kind", services.Kind(lastErr)),
				logging.String(logging.FieldErrorHint, failureHint(lastErr)),
				logging.Error(lastErr),
			)
			break
		}
		logging.WarnWithContext(logger, "step attempt failed; retrying", "step_retry",
			logging.String("error_kind", services.Kind(lastErr)),
			logging.Duration("retry_in", opts.Delay),
			logging.String(logging.FieldErrorHint, "transient failure, the step will run again"),
			logging.String(logging.FieldImpact, "run is delayed"),
			logging.Error(lastErr),
		)
		if err := sleep(stepCtx, opts.Delay); err != nil {
			lastErr = fmt.Errorf("%s: retry wait interrupted: %w", name, err)
			break
		}
	}

	syncRun(opts.Run, opts.State)
	opts.Run.ErrorKind = services.Kind(lastErr)
	opts.Run.ErrorMessage = strings.TrimSpace(lastErr.Error())
	persist(stepCtx, logging.WithContext(stepCtx, opts.Logger), opts)
	return lastErr
}

func runAttempt(ctx context.Context, handler stage.Handler, state *stage.RunState, timeout time.Duration, name string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := handler.Prepare(ctx, state)
	if err == nil {
		err = handler.Execute(ctx, state)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, name, "execute", fmt.Sprintf("exceeded %s", timeout), err)
	}
	return err
}

func persist(ctx context.Context, logger *slog.Logger, opts Options) {
	if opts.Ledger == nil {
		return
	}
	// A canceled run context must not stop the ledger from recording the outcome.
	if err := opts.Ledger.Update(context.WithoutCancel(ctx), opts.Run); err != nil {
		logger.Warn("failed to persist run progress", logging.Error(err))
	}
}

// syncRun copies step outputs from the run state onto the ledger record.
func syncRun(run *runlog.Run, state *stage.RunState) {
	if dates := state.Dates(); len(dates) > 0 {
		run.Dates = dates
	}
	run.RowsInserted = state.Inserted
	run.RowsSkipped = state.Skipped
	run.CSVRows = state.CSVRows
	run.TrackedMD5 = state.TrackedMD5
	run.CommitHash = state.CommitHash
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "check the configuration and credentials"
	case errors.Is(err, services.ErrValidation):
		return "inspect the input data for this step"
	case errors.Is(err, services.ErrNotFound):
		return "no APOD entry exists for the requested date"
	case errors.Is(err, services.ErrExternalTool):
		return "run the failing dvc/git command by hand in the repository"
	case errors.Is(err, services.ErrTimeout):
		return "raise pipeline.step_timeout_seconds or check the upstream service"
	default:
		return "retries exhausted; rerun later"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
