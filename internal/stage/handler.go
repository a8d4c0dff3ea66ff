// Package stage defines the contract every pipeline step implements and the
// run state the steps hand to one another.
package stage

import (
	"context"
	"log/slog"
)

// Handler describes the contract the pipeline needs from each step.
// Prepare validates inputs from earlier steps; Execute does the work. Both run
// again on every retry attempt.
type Handler interface {
	Name() string
	Prepare(context.Context, *RunState) error
	Execute(context.Context, *RunState) error
	HealthCheck(context.Context) Health
}

// LoggerAware handlers receive a logger scoped to the current run and step.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
