package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"apodpipe/internal/csvstore"
	"apodpipe/internal/logging"
	"apodpipe/internal/record"
	"apodpipe/internal/services"
	"apodpipe/internal/stage"
	"apodpipe/internal/warehouse"
)

// TableSink is the relational side of the dual write.
type TableSink interface {
	EnsureSchema(context.Context) error
	Load(context.Context, []record.Observation) (warehouse.LoadResult, error)
	Ping(context.Context) error
}

// FileSink is the flat-file side of the dual write.
type FileSink interface {
	Path() string
	Upsert([]record.Observation) (csvstore.UpsertResult, error)
}

// Load writes the transformed records to the table and the CSV file
// concurrently. Both writes must succeed; both are idempotent by date, so a
// retry after a partial failure converges.
type Load struct {
	table  TableSink
	file   FileSink
	logger *slog.Logger
}

// NewLoad builds the load step.
func NewLoad(table TableSink, file FileSink, logger *slog.Logger) *Load {
	l := &Load{table: table, file: file}
	l.SetLogger(logger)
	return l
}

func (l *Load) Name() string { return NameLoad }

// SetLogger implements stage.LoggerAware.
func (l *Load) SetLogger(logger *slog.Logger) {
	l.logger = logging.NewComponentLogger(logger, NameLoad)
}

func (l *Load) Prepare(_ context.Context, state *stage.RunState) error {
	if l.table == nil || l.file == nil {
		return services.Wrap(services.ErrConfiguration, NameLoad, "prepare", "sinks unavailable", nil)
	}
	if len(state.Records) == 0 {
		return services.Wrap(services.ErrValidation, NameLoad, "prepare", "", record.ErrEmptyBatch)
	}
	return nil
}

func (l *Load) Execute(ctx context.Context, state *stage.RunState) error {
	var (
		loaded   warehouse.LoadResult
		upserted csvstore.UpsertResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.table.EnsureSchema(gctx); err != nil {
			marker := services.ErrTransient
			if errors.Is(err, services.ErrConfiguration) {
				marker = services.ErrConfiguration
			}
			return services.Wrap(marker, NameLoad, "ensure schema", "", err)
		}
		res, err := l.table.Load(gctx, state.Records)
		if err != nil {
			return services.Wrap(services.ErrTransient, NameLoad, "insert rows", "", err)
		}
		loaded = res
		return nil
	})
	g.Go(func() error {
		res, err := l.file.Upsert(state.Records)
		if err != nil {
			return services.Wrap(services.ErrTransient, NameLoad, "write csv", l.file.Path(), err)
		}
		upserted = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	state.Inserted = loaded.Inserted
	state.Skipped = loaded.Skipped
	state.InsertedDates = loaded.InsertedDates
	state.CSVPath = l.file.Path()
	state.CSVRows = upserted.Rows

	l.logger.Info("loaded APOD data",
		logging.Int("inserted", loaded.Inserted),
		logging.Int("skipped", loaded.Skipped),
		logging.String("csv_path", state.CSVPath),
		logging.Int("csv_rows", upserted.Rows),
		logging.Int("csv_added", upserted.Added),
		logging.Bool("csv_created", upserted.Created),
	)
	return nil
}

func (l *Load) HealthCheck(ctx context.Context) stage.Health {
	if l.table == nil || l.file == nil {
		return stage.Unhealthy(NameLoad, "sinks unavailable")
	}
	if err := l.table.Ping(ctx); err != nil {
		return stage.Unhealthy(NameLoad, fmt.Sprintf("database unreachable: %v", err))
	}
	return stage.Healthy(NameLoad)
}
