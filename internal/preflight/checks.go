package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"apodpipe/internal/config"
	"apodpipe/internal/deps"
	"apodpipe/internal/warehouse"
)

const demoKey = "DEMO_KEY"

// CheckAPIKey verifies an APOD API key is configured. The shared demo key
// passes but is flagged because it is heavily rate limited.
func CheckAPIKey(cfg *config.Config) Result {
	const name = "APOD API key"
	key := strings.TrimSpace(cfg.APOD.APIKey)
	switch key {
	case "":
		return Result{Name: name, Detail: "missing (set NASA_API_KEY or apod.api_key)"}
	case demoKey:
		return Result{Name: name, Passed: true, Warning: true, Detail: "using DEMO_KEY (rate limited; set NASA_API_KEY)"}
	default:
		return Result{Name: name, Passed: true, Detail: "configured"}
	}
}

// CheckBinaries reports whether the dvc and git executables can be found.
func CheckBinaries(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.VersioningRequirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		r := Result{Name: s.Name, Passed: s.Available || s.Optional, Warning: !s.Available && s.Optional}
		switch {
		case s.Available:
			r.Detail = s.Path
		case s.Detail != "":
			r.Detail = s.Detail
		default:
			r.Detail = "not available"
		}
		results = append(results, r)
	}
	return results
}

// CheckDatabase opens the configured database and pings it.
func CheckDatabase(ctx context.Context, cfg config.Database) Result {
	name := fmt.Sprintf("Database (%s)", cfg.Driver)

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	wh, err := warehouse.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer wh.Close()
	if err := wh.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (table %s)", cfg.Table)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
