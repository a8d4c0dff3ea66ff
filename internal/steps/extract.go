package steps

import (
	"context"
	"log/slog"

	"apodpipe/internal/apod"
	"apodpipe/internal/logging"
	"apodpipe/internal/record"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
)

// Extract fetches APOD payloads for the run's request.
type Extract struct {
	fetcher apod.Fetcher
	logger  *slog.Logger
}

// NewExtract builds the extract step.
func NewExtract(fetcher apod.Fetcher, logger *slog.Logger) *Extract {
	e := &Extract{fetcher: fetcher}
	e.SetLogger(logger)
	return e
}

func (e *Extract) Name() string { return NameExtract }

// SetLogger implements stage.LoggerAware.
func (e *Extract) SetLogger(logger *slog.Logger) {
	e.logger = logging.NewComponentLogger(logger, NameExtract)
}

func (e *Extract) Prepare(_ context.Context, state *stage.RunState) error {
	if e.fetcher == nil {
		return services.Wrap(services.ErrConfiguration, NameExtract, "prepare", "APOD client unavailable", nil)
	}
	req := state.Request
	if !req.IsRange() {
		return nil
	}
	if !req.Date.IsZero() {
		return services.Wrap(services.ErrValidation, NameExtract, "prepare", "a single date and a date range are mutually exclusive", nil)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return services.Wrap(services.ErrValidation, NameExtract, "prepare", "date range needs both start and end", nil)
	}
	if req.End.Before(req.Start) {
		return services.Wrap(services.ErrValidation, NameExtract, "prepare", "date range end is before start", nil)
	}
	return nil
}

func (e *Extract) Execute(ctx context.Context, state *stage.RunState) error {
	e.logger.Info("extracting APOD data", logging.String("request", state.Request.Label()))

	if state.Request.IsRange() {
		payloads, err := e.fetcher.FetchRange(ctx, state.Request.Start, state.Request.End)
		if err != nil {
			return services.Wrap(apod.ErrorMarker(err), NameExtract, "fetch range", "APOD range request failed", err)
		}
		state.Payloads = payloads
	} else {
		payload, err := e.fetcher.Fetch(ctx, state.Request.Date)
		if err != nil {
			return services.Wrap(apod.ErrorMarker(err), NameExtract, "fetch", "APOD request failed", err)
		}
		state.Payloads = []record.Payload{payload}
	}

	if len(state.Payloads) == 0 {
		return services.Wrap(services.ErrNotFound, NameExtract, "fetch", "APOD returned no entries for "+state.Request.Label(), nil)
	}
	first := state.Payloads[0]
	e.logger.Info("extracted APOD data",
		logging.Int("entries", len(state.Payloads)),
		logging.String("first_date", first.Date),
		logging.String("title", first.Title),
	)
	return nil
}

func (e *Extract) HealthCheck(context.Context) stage.Health {
	if e.fetcher == nil {
		return stage.Unhealthy(NameExtract, "APOD client unavailable")
	}
	return stage.Healthy(NameExtract)
}
