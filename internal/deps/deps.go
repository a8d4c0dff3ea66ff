// Package deps checks that the external command-line tools the pipeline
// shells out to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"apodpipe/internal/config"
)

// Requirement defines an external dependency apodpipe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// VersioningRequirements lists the binaries the version and commit steps run.
func VersioningRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "DVC",
			Command:     cfg.Versioning.DVCBinary,
			Description: "Required to version the CSV file",
		},
		{
			Name:        "git",
			Command:     cfg.Versioning.GitBinary,
			Description: "Required to commit DVC metadata",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the required (non-optional) dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
