package preflight

import (
	"context"

	"songify/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Persistence.Mode == config.PersistenceLocal {
		results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir))
	}
	results = append(results,
		CheckNativeHost(cfg.Native.Command),
		CheckCredentials(cfg.Credentials),
		CheckBindAvailable(ctx, cfg.Bridge.Bind),
	)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
