package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vtranscoder/internal/config"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/notifications"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
	"vtranscoder/internal/subtitles"
	"vtranscoder/internal/subtitles/opensubtitles"
)

const (
	// ErrorCooldown is the pause after an iteration fails unexpectedly.
	ErrorCooldown = 5 * time.Minute
	// MaxIdleWait caps a single sleep outside the schedule window.
	MaxIdleWait = 5 * time.Minute
	// StopSettleDelay is the pause between clearing a stop request and
	// returning.
	StopSettleDelay = time.Second
)

// ErrStopRequested is returned by Run when the stop marker ended the loop.
var ErrStopRequested = proc.ErrStopRequested

// Loop is the engine's main loop.
type Loop struct {
	configPath string
	store      *state.Store
	logger     *slog.Logger

	exec      proc.Executor
	notifier  notifications.Service
	provider  subtitles.ProviderFactory
	now       func() time.Time
	cooldown  time.Duration
	stopDelay time.Duration
	wake      <-chan string

	mu      sync.RWMutex
	status  Status
	lastCfg *config.Config
}

// Option customizes a Loop.
type Option func(*Loop)

// WithExecutor routes every external command through exec.
func WithExecutor(exec proc.Executor) Option {
	return func(l *Loop) { l.exec = exec }
}

// WithNotifier overrides the per-iteration notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(l *Loop) { l.notifier = notifier }
}

// WithProvider overrides the remote subtitle provider factory.
func WithProvider(factory subtitles.ProviderFactory) Option {
	return func(l *Loop) { l.provider = factory }
}

// WithClock overrides the time source used for schedule decisions.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithCooldown overrides ErrorCooldown.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) { l.cooldown = d }
}

// WithStopDelay overrides StopSettleDelay.
func WithStopDelay(d time.Duration) Option {
	return func(l *Loop) { l.stopDelay = d }
}

// WithWake ends sleeps early whenever ch delivers.
func WithWake(ch <-chan string) Option {
	return func(l *Loop) { l.wake = ch }
}

// NewLoop builds a Loop that reads settings from configPath and keeps its
// documents in store.
func NewLoop(configPath string, store *state.Store, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		configPath: configPath,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		now:        time.Now,
		cooldown:   ErrorCooldown,
		stopDelay:  StopSettleDelay,
		status:     Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.provider == nil {
		l.provider = subtitles.OpenSubtitlesProvider(opensubtitles.NewLimiter(), l.logger)
	}
	return l
}

// Run loops until ctx ends, a stop is requested, or the settings become
// invalid. Host shutdown returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.recoverInterrupted()
	defer l.resetProgress()

	for {
		if ctx.Err() != nil {
			l.setState(StateStopped)
			return nil
		}
		wait, err := l.safeIterate(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrStopRequested):
			l.setState(StateStopped)
			return err
		case ctx.Err() != nil:
			l.setState(StateStopped)
			return nil
		case services.IsFatal(err):
			l.setState(StateFatal)
			l.setLastError(err)
			logging.ErrorWithContext(l.logger, "settings invalid; stopping", "config_invalid",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the configuration file and restart"),
			)
			return err
		default:
			metrics.LoopErrorsTotal.Inc()
			l.setState(StateCooldown)
			l.setLastError(err)
			logging.ErrorWithContext(l.logger, "iteration failed; cooling down", "iteration_failed",
				logging.Error(err),
				logging.Duration("cooldown", l.cooldown),
			)
			l.notifyError(ctx, err)
			wait = l.cooldown
		}
		l.sleep(ctx, wait)
	}
}

// safeIterate runs one iteration, turning a panic into an error.
func (l *Loop) safeIterate(ctx context.Context) (wait time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := newPanicError(r)
			l.logger.Error("iteration panicked", logging.Any("panic", r), logging.String("stack", string(perr.stack)))
			err = perr
		}
	}()
	return l.iterate(ctx)
}
