package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"vtranscoder/internal/config"
	"vtranscoder/internal/encoding"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/notifications"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/schedule"
	"vtranscoder/internal/services"
	"vtranscoder/internal/subtitles"
)

type panicError struct {
	value any
	stack []byte
}

func newPanicError(value any) *panicError {
	return &panicError{value: value, stack: debug.Stack()}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("iteration panic: %v", e.value)
}

// iterate runs one pass and returns how long to sleep before the next.
func (l *Loop) iterate(ctx context.Context) (time.Duration, error) {
	if l.store.Stop.Requested() {
		return 0, l.honourStop(ctx)
	}

	l.setState(StateValidatingConfig)
	cfg, _, _, err := config.Load(l.configPath)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "workflow", "load settings", l.configPath, err)
	}
	l.setConfig(cfg)
	for _, warning := range cfg.Warnings() {
		logging.WarnWithContext(l.logger, warning, "config_warning",
			logging.String(logging.FieldImpact, "processing continues"),
		)
	}
	window, err := cfg.Window()
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "workflow", "schedule", "invalid window", err)
	}

	now := l.now()
	if !schedule.IsWithinWindow(now, window) {
		metrics.SetWindow(false)
		l.setState(StateOutOfWindow)
		wait := schedule.CappedWait(schedule.TimeUntilNextWindow(now, window), MaxIdleWait)
		l.logger.Info("outside processing window", logging.Duration("next_check", wait))
		return wait, nil
	}

	metrics.SetWindow(true)
	l.setState(StateInWindow)
	if err := l.drain(ctx, cfg); err != nil {
		return 0, err
	}
	return cfg.CheckInterval(), nil
}

// drain runs every pending job in order, checking the stop marker before
// each one.
func (l *Loop) drain(ctx context.Context, cfg *config.Config) error {
	source := jobsource.New(l.store.History, l.logger)
	resolver := subtitles.NewResolver(cfg, l.store.Progress, l.store.Stop, l.logger,
		subtitles.WithExecutor(l.exec),
		subtitles.WithProvider(l.provider),
	)
	encodeOpts := []encoding.Option{encoding.WithExecutor(l.exec), encoding.WithNotifier(l.notifier)}
	orchestrator := encoding.NewOrchestrator(cfg, l.store.History, l.store.Progress, l.store.Stop, l.logger, encodeOpts...)

	processed := 0
	err := source.Enumerate(ctx, cfg, func(job jobsource.Job) bool {
		if l.store.Stop.Requested() {
			return false
		}
		l.runJob(ctx, job, resolver, orchestrator)
		processed++
		return ctx.Err() == nil
	})
	if l.store.Stop.Requested() {
		return l.honourStop(ctx)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	if processed == 0 {
		l.logger.Debug("no pending files")
	} else {
		l.logger.Info("pass complete", logging.Int("processed", processed))
	}
	return nil
}

func (l *Loop) runJob(ctx context.Context, job jobsource.Job, resolver *subtitles.Resolver, orchestrator *encoding.Orchestrator) {
	ctx = services.WithJobID(ctx, uuid.NewString())
	logger := logging.WithContext(services.WithSource(ctx, job.Source), l.logger)
	l.setCurrent(&job)
	defer l.setCurrent(nil)

	logger.Info("job started", logging.String("output", job.Output))
	if resolver.Enabled() {
		if outcome := resolver.Resolve(ctx, job); outcome.Cancelled() {
			logger.Info("job cancelled during subtitles")
			l.resetProgress()
			return
		}
	}
	orchestrator.Run(ctx, job)
}

// honourStop clears the stop request and reports ErrStopRequested.
func (l *Loop) honourStop(ctx context.Context) error {
	l.logger.Info("stop requested; shutting down")
	l.resetProgress()
	if err := l.store.Stop.Clear(); err != nil {
		l.logger.Warn("clear stop signal failed", logging.Error(err))
	}
	if l.stopDelay > 0 {
		timer := time.NewTimer(l.stopDelay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	return ErrStopRequested
}

// sleep waits for d, returning early when ctx ends, the stop marker appears
// or the wake channel fires.
func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(proc.StopPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-ticker.C:
			if l.store.Stop.Requested() {
				return
			}
		case path := <-l.wake:
			l.logger.Debug("woken by file change", logging.String("path", path))
			return
		}
	}
}

func (l *Loop) resetProgress() {
	if err := l.store.Progress.Clear(); err != nil {
		l.logger.Warn("clear progress failed", logging.Error(err))
	}
}

func (l *Loop) notifyError(ctx context.Context, err error) {
	notifier := l.notifier
	if notifier == nil {
		cfg := l.config()
		if cfg == nil {
			return
		}
		notifier = notifications.NewService(cfg)
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	payload := notifications.Payload{"context": "run loop", "error": err}
	if pubErr := notifier.Publish(notifyCtx, notifications.EventError, payload); pubErr != nil {
		l.logger.Warn("notification failed", logging.Error(pubErr))
	}
}
