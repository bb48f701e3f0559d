package preflight

import (
	"context"

	"vtranscoder/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	for _, dir := range cfg.Paths.MonitoredDirs {
		results = append(results, CheckDirectoryReadable("Monitored directory", dir))
	}
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	if cfg.OpenSubtitles.Enabled {
		results = append(results, CheckOpenSubtitles(ctx, cfg.OpenSubtitles.BaseURL, cfg.OpenSubtitles.APIKey, cfg.OpenSubtitles.AppName))
	}

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
