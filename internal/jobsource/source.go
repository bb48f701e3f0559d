package jobsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vtranscoder/internal/config"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
)

// Job is one source file and where its result goes.
type Job struct {
	Source string
	Root   string
	Output string
}

// LedgerReader loads the current processing history.
type LedgerReader interface {
	Ledger() (state.Ledger, error)
}

// Source enumerates pending jobs.
type Source struct {
	history LedgerReader
	logger  *slog.Logger
}

// New builds a Source backed by history.
func New(history LedgerReader, logger *slog.Logger) *Source {
	return &Source{
		history: history,
		logger:  logging.NewComponentLogger(logger, "jobsource"),
	}
}

var errStopWalk = errors.New("stop walk")

// Enumerate calls yield for each pending job until yield returns false, ctx
// ends, or every monitored directory has been walked. History is reloaded
// before each directory so results recorded while jobs run are honoured.
func (s *Source) Enumerate(ctx context.Context, cfg *config.Config, yield func(Job) bool) error {
	if cfg == nil {
		return services.Wrap(services.ErrConfiguration, "jobsource", "enumerate", "nil config", nil)
	}
	outputDir := filepath.Clean(cfg.Paths.OutputDir)

	for _, root := range cfg.Paths.MonitoredDirs {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logging.WarnWithContext(s.logger, "monitored directory unavailable", "monitored_dir_missing",
				logging.String("dir", root),
				logging.String(logging.FieldErrorHint, "check paths.monitored_dirs and mounts"),
				logging.String(logging.FieldImpact, "directory skipped this pass"),
			)
			continue
		}

		ledger, err := s.history.Ledger()
		if err != nil {
			return services.Wrap(services.ErrTransient, "jobsource", "load history", "", err)
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return context.Cause(ctx)
			}
			if walkErr != nil {
				s.logger.Debug("skipping unreadable path", logging.String("path", path), logging.Error(walkErr))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && within(path, outputDir) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !HasVideoExtension(cfg, path) {
				return nil
			}
			if within(path, outputDir) || ledger.Succeeded(path) {
				return nil
			}
			job := Job{Source: path, Root: root, Output: OutputPath(cfg, root, path)}
			if !yield(job) {
				return errStopWalk
			}
			return nil
		})
		if errors.Is(err, errStopWalk) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return nil
}

// Pending collects every pending job. It is used by status views; the run
// loop consumes Enumerate directly.
func (s *Source) Pending(ctx context.Context, cfg *config.Config) ([]Job, error) {
	var jobs []Job
	err := s.Enumerate(ctx, cfg, func(job Job) bool {
		jobs = append(jobs, job)
		return true
	})
	return jobs, err
}

// HasVideoExtension reports whether path has one of the configured
// extensions, compared case-insensitively.
func HasVideoExtension(cfg *config.Config, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return slices.Contains(cfg.Output.FileExtensions, ext)
}

// OutputPath computes where source's result is written. With folder
// preservation the monitored directory's own name is kept as the first
// component under the output directory.
func OutputPath(cfg *config.Config, root, source string) string {
	var target string
	rel, err := filepath.Rel(root, source)
	if cfg.Output.PreserveFolderStructure && err == nil && !strings.HasPrefix(rel, "..") {
		target = filepath.Join(cfg.Paths.OutputDir, filepath.Base(root), rel)
	} else {
		target = filepath.Join(cfg.Paths.OutputDir, filepath.Base(source))
	}
	if cfg.TranscodingEnabled() && cfg.Output.Extension != "" {
		target = strings.TrimSuffix(target, filepath.Ext(target)) + "." + cfg.Output.Extension
	}
	return target
}

func within(path, dir string) bool {
	if dir == "" || dir == "." {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
