package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vtranscoder/internal/config"
	"vtranscoder/internal/fileutil"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/media/probe"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/notifications"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
)

const notifyTimeout = 10 * time.Second

// HistoryWriter records the final result for a source.
type HistoryWriter interface {
	Record(entry state.HistoryEntry) error
}

// ProgressStore persists the live progress snapshot.
type ProgressStore interface {
	Update(fn func(*state.ProgressSnapshot)) error
	Clear() error
}

// Orchestrator runs one job at a time.
type Orchestrator struct {
	cfg      *config.Config
	exec     proc.Executor
	history  HistoryWriter
	progress ProgressStore
	stop     proc.StopChecker
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithExecutor injects the command executor (primarily for tests).
func WithExecutor(exec proc.Executor) Option {
	return func(o *Orchestrator) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator builds an Orchestrator for cfg. stop may be nil.
func NewOrchestrator(cfg *config.Config, history HistoryWriter, progress ProgressStore, stop proc.StopChecker, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		exec:     proc.CommandExecutor{},
		history:  history,
		progress: progress,
		stop:     stop,
		notifier: notifications.NewService(cfg),
		logger:   logging.NewComponentLogger(logger, "encoding"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run produces job.Output from job.Source. Whatever the outcome, the
// progress document is reset to idle and one history entry is written.
func (o *Orchestrator) Run(ctx context.Context, job jobsource.Job) services.Outcome {
	mode := SelectMode(o.cfg)
	start := o.now()
	ctx = services.WithSource(services.WithStage(ctx, "encoding"), job.Source)
	logger := logging.WithContext(ctx, o.logger).With(
		logging.String("output", job.Output),
		logging.String("mode", string(mode)),
	)

	outcome := o.watched(ctx, func(runCtx context.Context) services.Outcome {
		return o.execute(runCtx, logger, job, mode, start)
	})
	o.finish(ctx, logger, job, mode, outcome, start)
	return outcome
}

// watched runs fn under a context that is cancelled once a stop is
// requested.
func (o *Orchestrator) watched(ctx context.Context, fn func(context.Context) services.Outcome) services.Outcome {
	runCtx, release := proc.WatchStop(ctx, o.stop, proc.StopPollInterval)
	defer release()
	return fn(runCtx)
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, job jobsource.Job, mode Mode, start time.Time) services.Outcome {
	if _, err := os.Stat(job.Output); err == nil && !o.cfg.Output.OverwriteExisting {
		logger.Info("output exists; skipping", logging.String(logging.FieldDecisionType, "output_exists"))
		return services.Skipped()
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return services.Failed(services.Wrap(services.ErrValidation, "encoding", "prepare output", "create output directory", err))
	}

	t := &tracker{
		progress: o.progress,
		job:      job,
		mode:     mode,
		start:    start,
		now:      o.now,
		sampler:  logging.NewProgressSampler(5),
		logger:   logger,
	}
	o.begin(job, mode, start)

	var outcome services.Outcome
	switch mode {
	case ModeHandBrake:
		outcome = o.runHandBrake(ctx, logger, job, t)
	case ModeFFmpeg:
		outcome = o.runFFmpeg(ctx, logger, job, t)
	default:
		outcome = o.runCopy(ctx, logger, job, t)
	}

	if outcome.Success() && o.cfg.Output.DeleteOriginal {
		if err := os.Remove(job.Source); err != nil {
			logging.WarnWithContext(logger, "delete original failed", "delete_original_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "source stays in the monitored folder"),
			)
		} else {
			logger.Info("original deleted")
		}
	}
	return outcome
}

func (o *Orchestrator) begin(job jobsource.Job, mode Mode, start time.Time) {
	if o.progress == nil {
		return
	}
	err := o.progress.Update(func(snapshot *state.ProgressSnapshot) {
		snapshot.Active = true
		snapshot.Encoding = true
		snapshot.CurrentFile = job.Source
		snapshot.OutputFile = job.Output
		snapshot.StartTime = start
		snapshot.Percent = 0
		snapshot.ETA = 0
		snapshot.FPS = 0
		snapshot.Status = mode.verb()
	})
	if err != nil {
		o.logger.Debug("progress update failed", logging.Error(err))
	}
}

func (o *Orchestrator) runHandBrake(ctx context.Context, logger *slog.Logger, job jobsource.Job, t *tracker) services.Outcome {
	args, err := HandBrakeArgs(o.cfg.Encoder.HandBrakeParameters, job.Source, job.Output)
	if err != nil {
		return services.Failed(services.Wrap(services.ErrConfiguration, "encoding", "handbrake", "parse handbrake_parameters", err))
	}
	logger.Info("launching handbrake",
		logging.String("command", o.cfg.Encoder.HandBrakePath+" "+strings.Join(args, " ")),
	)
	onLine := func(line string) {
		if p, ok := ParseHandBrakeProgress(line, t.elapsed()); ok {
			t.report(p)
		}
	}
	err = o.exec.Run(ctx, o.cfg.Encoder.HandBrakePath, args, onLine, onLine)
	return o.toolOutcome(ctx, logger, job, "handbrake", err)
}

func (o *Orchestrator) runFFmpeg(ctx context.Context, logger *slog.Logger, job jobsource.Job, t *tracker) services.Outcome {
	info, err := probe.Run(ctx, o.exec, o.cfg.Encoder.FFmpegPath, job.Source)
	if err != nil {
		if ctx.Err() != nil {
			return services.Cancelled()
		}
		return services.Failed(services.Wrap(services.ErrExternalTool, "encoding", "ffmpeg probe", "inspect source", err))
	}
	plan := NewPlan(info, job.Source, job.Output)
	logger.Info("ffmpeg plan",
		logging.String(logging.FieldDecisionType, "ffmpeg_plan"),
		logging.String("video_codec", info.VideoCodec),
		logging.String("audio_codec", info.AudioCodec),
		logging.String("audio_channels", info.AudioChannels),
		logging.Bool("transcode_video", plan.TranscodeVideo),
		logging.Bool("transcode_audio", plan.TranscodeAudio),
		logging.Bool("remux", plan.Remux),
		logging.Bool("drop_subtitles", plan.DropSubtitles),
	)
	if plan.CopyOnly() {
		logger.Info("source already compatible; copying")
		return o.runCopy(ctx, logger, job, t)
	}

	args := plan.Args(job.Source, job.Output, o.cfg.Output.OverwriteExisting)
	logger.Info("launching ffmpeg",
		logging.String("command", o.cfg.Encoder.FFmpegPath+" "+strings.Join(args, " ")),
	)
	onLine := func(line string) {
		if p, ok := ParseFFmpegProgress(line, info.Duration, t.elapsed()); ok {
			t.report(p)
		}
	}
	err = o.exec.Run(ctx, o.cfg.Encoder.FFmpegPath, args, onLine, onLine)
	return o.toolOutcome(ctx, logger, job, "ffmpeg", err)
}

func (o *Orchestrator) runCopy(ctx context.Context, logger *slog.Logger, job jobsource.Job, t *tracker) services.Outcome {
	logger.Info("copying source")
	err := fileutil.CopyWithProgress(ctx, job.Source, job.Output, func(percent int) {
		p := float64(percent)
		t.report(Progress{Percent: p, ETA: LinearETA(t.elapsed(), p)})
	})
	if err == nil {
		logger.Info("copy complete")
		return services.Succeeded()
	}
	if ctx.Err() != nil {
		o.removePartial(logger, job.Output)
		return services.Cancelled()
	}
	return services.Failed(services.Wrap(services.ErrTransient, "encoding", "copy", "copy source", err))
}

// toolOutcome classifies the result of an encoder process. Interrupted runs
// lose their partial output; failed runs keep it for inspection.
func (o *Orchestrator) toolOutcome(ctx context.Context, logger *slog.Logger, job jobsource.Job, tool string, err error) services.Outcome {
	if err == nil {
		logger.Info(tool + " finished")
		return services.Succeeded()
	}
	if ctx.Err() != nil {
		logger.Info(tool+" interrupted", logging.String("reason", context.Cause(ctx).Error()))
		o.removePartial(logger, job.Output)
		return services.Cancelled()
	}
	code := proc.ExitCode(err)
	logging.ErrorWithContext(logger, tool+" failed", tool+"_failed",
		logging.Int("exit_code", code),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the encoder output in the debug log"),
	)
	return services.Failed(services.Wrap(services.ErrExternalTool, "encoding", tool, fmt.Sprintf("exit code %d", code), err))
}

func (o *Orchestrator) removePartial(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove partial output failed", logging.String("path", path), logging.Error(err))
	}
}

// finish clears progress, writes the history entry and reports the outcome.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, job jobsource.Job, mode Mode, outcome services.Outcome, start time.Time) {
	metrics.EncodePercent.Set(0)
	if o.progress != nil {
		if err := o.progress.Clear(); err != nil {
			logger.Warn("clear progress failed", logging.Error(err))
		}
	}
	if o.history != nil {
		entry := state.HistoryEntry{
			SourcePath: job.Source,
			OutputPath: job.Output,
			Timestamp:  o.now(),
			Success:    outcome.Success(),
		}
		if err := o.history.Record(entry); err != nil {
			logging.ErrorWithContext(logger, "record history failed", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "file may be processed again"),
			)
		}
	}

	elapsed := o.now().Sub(start)
	metrics.RecordJob(string(mode), outcome.Kind.String(), elapsed)

	attrs := []logging.Attr{
		logging.String("outcome", outcome.Kind.String()),
		logging.Duration("elapsed", elapsed),
	}
	if outcome.Err != nil {
		attrs = append(attrs, logging.Error(outcome.Err), logging.String("error_kind", services.Kind(outcome.Err)))
	}
	logger.Info("job finished", logging.Args(attrs...)...)

	o.notify(ctx, logger, job, mode, outcome, elapsed)
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, job jobsource.Job, mode Mode, outcome services.Outcome, elapsed time.Duration) {
	if o.notifier == nil {
		return
	}
	event := notifications.EventJobCompleted
	switch outcome.Kind {
	case services.OutcomeFailed:
		event = notifications.EventJobFailed
	case services.OutcomeCancelled:
		event = notifications.EventJobCancelled
	case services.OutcomeSkipped:
		event = notifications.EventJobSkipped
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	payload := notifications.Payload{
		"file":     filepath.Base(job.Output),
		"mode":     string(mode),
		"duration": elapsed,
	}
	if outcome.Err != nil {
		payload["error"] = outcome.Err
	}
	if err := o.notifier.Publish(notifyCtx, event, payload); err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
}
