// Package logging assembles structured slog loggers and formatting helpers used
// across the engine.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code tags log lines with job IDs,
// stages and source paths. Run log files are pruned through CleanupOldLogs.
package logging
