// Package steps implements the five pipeline steps: extract, transform, load,
// version, and commit.
//
// Each step satisfies stage.Handler and communicates with the others only
// through the shared *stage.RunState. Step errors are tagged with services
// markers so the executor can decide whether another attempt is worthwhile;
// deterministic problems (missing inputs, malformed payloads, rejected keys)
// are marked as validation or configuration errors and fail fast.
package steps

// Step names, in execution order.
const (
	NameExtract   = "extract"
	NameTransform = "transform"
	NameLoad      = "load"
	NameVersion   = "version"
	NameCommit    = "commit"
)

// Order lists the step names in execution order.
var Order = []string{NameExtract, NameTransform, NameLoad, NameVersion, NameCommit}
