package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"apodpipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a passing check the operator should still look at.
	Warning bool
	Detail  string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes every preflight check for the given config. Results are
// returned in a stable order regardless of completion order.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	checks := []func(context.Context) []Result{
		func(context.Context) []Result { return []Result{CheckAPIKey(cfg)} },
		func(context.Context) []Result { return CheckBinaries(cfg) },
		func(context.Context) []Result {
			return []Result{
				CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
				CheckDirectoryAccess("Repository directory", cfg.Paths.RepoDir),
				CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
			}
		},
		func(ctx context.Context) []Result { return []Result{CheckDatabase(ctx, cfg.Database)} },
	}

	grouped := make([][]Result, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			grouped[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var results []Result
	for _, group := range grouped {
		results = append(results, group...)
	}
	return results
}
