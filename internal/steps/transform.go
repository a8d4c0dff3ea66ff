package steps

import (
	"context"
	"log/slog"

	"apodpipe/internal/logging"
	"apodpipe/internal/record"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
)

// Transform converts raw payloads into tabular observations.
type Transform struct {
	logger *slog.Logger
}

// NewTransform builds the transform step.
func NewTransform(logger *slog.Logger) *Transform {
	t := &Transform{}
	t.SetLogger(logger)
	return t
}

func (t *Transform) Name() string { return NameTransform }

// SetLogger implements stage.LoggerAware.
func (t *Transform) SetLogger(logger *slog.Logger) {
	t.logger = logging.NewComponentLogger(logger, NameTransform)
}

func (t *Transform) Prepare(_ context.Context, state *stage.RunState) error {
	if len(state.Payloads) == 0 {
		return services.Wrap(services.ErrValidation, NameTransform, "prepare", "", record.ErrEmptyBatch)
	}
	return nil
}

func (t *Transform) Execute(_ context.Context, state *stage.RunState) error {
	records, err := record.Transform(state.Payloads, state.Clock())
	if err != nil {
		return services.Wrap(services.ErrValidation, NameTransform, "transform payloads", "", err)
	}
	state.Records = records
	t.logger.Info("transformed APOD data",
		logging.Int("rows", len(records)),
		logging.Int("columns", len(record.Columns())),
	)
	return nil
}

func (t *Transform) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(NameTransform)
}
