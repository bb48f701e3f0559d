package subtitles

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vtranscoder/internal/config"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
	"vtranscoder/internal/subtitles/opensubtitles"
)

// Provider is the remote subtitle source used to fill missing languages.
type Provider interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Search(ctx context.Context, req opensubtitles.SearchRequest) ([]opensubtitles.Subtitle, error)
	Download(ctx context.Context, fileID int64) ([]byte, error)
}

// ProviderFactory builds a Provider for the current settings.
type ProviderFactory func(cfg *config.Config) (Provider, error)

// ProgressWriter persists the live progress snapshot.
type ProgressWriter interface {
	Update(fn func(*state.ProgressSnapshot)) error
}

// OpenSubtitlesProvider returns a factory for OpenSubtitles clients sharing
// limiter, so pacing holds across jobs.
func OpenSubtitlesProvider(limiter *rate.Limiter, logger *slog.Logger) ProviderFactory {
	if limiter == nil {
		limiter = opensubtitles.NewLimiter()
	}
	return func(cfg *config.Config) (Provider, error) {
		return opensubtitles.New(opensubtitles.Config{
			APIKey:     cfg.OpenSubtitles.APIKey,
			AppName:    cfg.OpenSubtitles.AppName,
			BaseURL:    cfg.OpenSubtitles.BaseURL,
			HTTPClient: &http.Client{Timeout: cfg.OpenSubtitlesTimeout()},
			Limiter:    limiter,
			Logger:     logging.NewComponentLogger(logger, "opensubtitles"),
		})
	}
}

// Resolver runs the subtitle stages for one job at a time.
type Resolver struct {
	cfg      *config.Config
	exec     proc.Executor
	progress ProgressWriter
	stop     proc.StopChecker
	provider ProviderFactory
	logger   *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithExecutor injects the command executor (primarily for tests).
func WithExecutor(exec proc.Executor) Option {
	return func(r *Resolver) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithProvider overrides the remote subtitle provider factory.
func WithProvider(factory ProviderFactory) Option {
	return func(r *Resolver) {
		if factory != nil {
			r.provider = factory
		}
	}
}

// NewResolver builds a Resolver for cfg. progress and stop may be nil.
func NewResolver(cfg *config.Config, progress ProgressWriter, stop proc.StopChecker, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		exec:     proc.CommandExecutor{},
		progress: progress,
		stop:     stop,
		logger:   logging.NewComponentLogger(logger, "subtitles"),
	}
	r.provider = OpenSubtitlesProvider(nil, r.logger)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether any subtitle stage is switched on.
func (r *Resolver) Enabled() bool {
	s := r.cfg.Subtitles
	return s.Extract || s.ConvertToSRTIfMissing || s.CopyExternal || r.cfg.OpenSubtitles.Enabled
}

// Resolve runs every enabled stage for job. Only a stop request or context
// cancellation changes the outcome from success.
func (r *Resolver) Resolve(ctx context.Context, job jobsource.Job) services.Outcome {
	if !r.Enabled() {
		return services.Skipped()
	}
	ctx, release := proc.WatchStop(services.WithStage(ctx, "subtitles"), r.stop, proc.StopPollInterval)
	defer release()
	logger := logging.WithContext(ctx, r.logger)

	subsDir := filepath.Join(filepath.Dir(job.Output), SubsDirName)
	r.report(job, func(p *state.SubtitleProgress) {
		p.Active = true
		p.Status = "Preparing subtitles"
	})

	var extracted extractedSet
	if r.cfg.Subtitles.Extract {
		extracted = r.extractEmbedded(ctx, logger, job, subsDir)
		if r.interrupted(ctx) {
			return r.cancelled(logger, "extract")
		}
	}
	if r.cfg.Subtitles.ConvertToSRTIfMissing {
		r.convertMissing(ctx, logger, job, subsDir, extracted)
		if r.interrupted(ctx) {
			return r.cancelled(logger, "convert")
		}
	}
	if r.cfg.Subtitles.CopyExternal {
		if copied := r.copyExternal(logger, job, subsDir); copied > 0 {
			logger.Info("copied external subtitles", logging.Int("count", copied))
		}
		if r.interrupted(ctx) {
			return r.cancelled(logger, "external")
		}
	}
	if r.cfg.OpenSubtitles.Enabled {
		r.fetchMissing(ctx, logger, job, subsDir)
		if r.interrupted(ctx) {
			return r.cancelled(logger, "opensubtitles")
		}
	}

	r.report(job, func(p *state.SubtitleProgress) {
		p.Active = false
		p.Status = "Subtitles complete"
	})
	return services.Succeeded()
}

func (r *Resolver) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return r.stop != nil && r.stop.Requested()
}

func (r *Resolver) cancelled(logger *slog.Logger, stage string) services.Outcome {
	logger.Info("subtitle processing interrupted", logging.String("after", stage))
	return services.Cancelled()
}

// report applies fn to the subtitle section of the progress snapshot.
func (r *Resolver) report(job jobsource.Job, fn func(*state.SubtitleProgress)) {
	if r.progress == nil {
		return
	}
	err := r.progress.Update(func(snapshot *state.ProgressSnapshot) {
		snapshot.Active = true
		snapshot.Encoding = false
		snapshot.CurrentFile = job.Source
		snapshot.OutputFile = ""
		if snapshot.StartTime.IsZero() {
			snapshot.StartTime = time.Now()
		}
		snapshot.Status = "Processing subtitles"
		fn(&snapshot.Subtitles)
	})
	if err != nil {
		r.logger.Debug("progress update failed", logging.Error(err))
	}
}

func (r *Resolver) ffmpeg() string {
	return r.cfg.Encoder.FFmpegPath
}

// runFFmpeg runs ffmpeg with args, forwarding its output to debug logs.
func (r *Resolver) runFFmpeg(ctx context.Context, logger *slog.Logger, args []string) error {
	logger.Debug("ffmpeg command", logging.String("args", strings.Join(args, " ")))
	forward := func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			logger.Debug(line, logging.String("tool", "ffmpeg"))
		}
	}
	return r.exec.Run(ctx, r.ffmpeg(), args, forward, forward)
}

// keepIfSized deletes path when it is smaller than MinSubtitleBytes. It
// reports whether the file exists and was kept.
func keepIfSized(logger *slog.Logger, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() >= MinSubtitleBytes {
		return true
	}
	logging.WarnWithContext(logger, "subtitle output too small; deleting", "subtitle_undersized",
		logging.String("path", path),
		logging.Int64("bytes", info.Size()),
		logging.String(logging.FieldImpact, "subtitle not produced"),
	)
	removeBestEffort(logger, path)
	return false
}

func removeBestEffort(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("remove failed", logging.String("path", path), logging.Error(err))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// hasPrefixFold reports whether s starts with prefix, ignoring case.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// hasSuffixFold reports whether s ends with suffix, ignoring case.
func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
