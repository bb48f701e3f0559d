package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
// Keep, when positive, caps the number of matching files regardless of age;
// the newest files survive.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	Keep    int
}

type retainedFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays or that exceed a target's Keep limit. A retentionDays
// value of 0 disables age-based pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		exclusions := make(map[string]struct{}, len(target.Exclude))
		for _, path := range target.Exclude {
			if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
				exclusions[abs] = struct{}{}
			}
		}

		files := matchRetained(dir, strings.TrimSpace(target.Pattern), exclusions)
		sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

		for idx, file := range files {
			overLimit := target.Keep > 0 && idx >= target.Keep
			expired := !cutoff.IsZero() && file.modTime.Before(cutoff)
			if !overLimit && !expired {
				continue
			}
			if err := os.Remove(file.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", file.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			if logger != nil {
				logger.Info("log pruned",
					String("path", file.path),
					Bool("over_limit", overLimit),
					String(FieldEventType, "log_pruned"),
				)
			}
		}
	}
}

func matchRetained(dir, pattern string, exclusions map[string]struct{}) []retainedFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	files := make([]retainedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if matched, err := filepath.Match(pattern, entry.Name()); err != nil || !matched {
				continue
			}
		}
		fullPath := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(fullPath); err == nil {
			fullPath = abs
		}
		if _, skip := exclusions[fullPath]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, retainedFile{path: fullPath, modTime: info.ModTime()})
	}
	return files
}
