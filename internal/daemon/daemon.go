package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"vtranscoder/internal/config"
	"vtranscoder/internal/deps"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/preflight"
	"vtranscoder/internal/state"
	"vtranscoder/internal/workflow"
)

// ErrAlreadyRunning reports that another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another vtranscoder instance is already running")

// Daemon runs the workflow loop under the single-instance lock.
type Daemon struct {
	cfg        *config.Config
	configPath string
	store      *state.Store
	logger     *slog.Logger
	loop       *workflow.Loop
	watcher    *config.Watcher
	api        *apiServer

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool

	mu     sync.RWMutex
	deps   []deps.Status
	checks []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	LockPath     string                 `json:"lockPath"`
	StopPending  bool                   `json:"stopPending"`
	Loop         workflow.Status        `json:"loop"`
	Progress     state.ProgressSnapshot `json:"progress"`
	Dependencies []deps.Status          `json:"dependencies,omitempty"`
	Checks       []preflight.Result     `json:"checks,omitempty"`
}

// New constructs a daemon. cfg supplies the lock, watch and API settings
// for this process; the loop itself rereads configPath every iteration.
func New(cfg *config.Config, configPath string, store *state.Store, logger *slog.Logger, opts ...workflow.Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and state store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		logger:     logger,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}

	watcher, err := config.NewWatcher(logger, configPath, store.Stop.Path())
	if err != nil {
		logging.WarnWithContext(logger, "config watcher unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "edits are picked up on the next poll"),
		)
	} else {
		d.watcher = watcher
		opts = append(opts, workflow.WithWake(watcher.Changes()))
	}

	d.loop = workflow.NewLoop(configPath, store, logger, opts...)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Run acquires the lock and blocks until the loop returns. It returns
// workflow.ErrStopRequested when the stop marker ended the run and nil when
// ctx was cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	d.running.Store(true)
	pidPath := d.cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}
	defer func() {
		d.running.Store(false)
		_ = os.Remove(pidPath)
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.refreshChecks(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.api.start(runCtx); err != nil {
		return err
	}
	defer d.api.stop()

	d.logger.Info("vtranscoder daemon started",
		logging.String("lock", d.lockPath),
		logging.String("config", d.configPath),
	)

	group, groupCtx := errgroup.WithContext(runCtx)
	if d.watcher != nil {
		group.Go(func() error {
			d.watcher.Run(groupCtx)
			return nil
		})
	}
	group.Go(func() error {
		defer cancel()
		return d.loop.Run(groupCtx)
	})
	err = group.Wait()

	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.logger.Info("vtranscoder daemon stopped", logging.String("reason", stopReason(err)))
	return err
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func stopReason(err error) string {
	switch {
	case err == nil:
		return "shutdown"
	case errors.Is(err, workflow.ErrStopRequested):
		return "stop requested"
	default:
		return err.Error()
	}
}

// refreshChecks evaluates dependencies and directories once per run. Failed
// checks are logged but never prevent startup; the loop reports the same
// problems through config validation.
func (d *Daemon) refreshChecks(ctx context.Context) {
	statuses := preflight.CheckSystemDeps(ctx, d.cfg)
	checks := preflight.RunAll(ctx, d.cfg)

	for _, dep := range statuses {
		if dep.Available || dep.Optional {
			continue
		}
		logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", dep.Name),
			logging.String("detail", dep.Detail),
			logging.String(logging.FieldErrorHint, "install the binary or fix the encoder path in the config"),
		)
	}
	for _, check := range preflight.Failed(checks) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
		)
	}

	d.mu.Lock()
	d.deps = statuses
	d.checks = checks
	d.mu.Unlock()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	progress, err := d.store.Progress.Load()
	if err != nil {
		d.logger.Debug("progress unreadable", logging.Error(err))
		progress = state.IdleSnapshot()
	}

	d.mu.RLock()
	statuses := append([]deps.Status(nil), d.deps...)
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.RUnlock()

	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockPath:     d.lockPath,
		StopPending:  d.store.Stop.Requested(),
		Loop:         d.loop.Status(),
		Progress:     progress,
		Dependencies: statuses,
		Checks:       checks,
	}
}

// History returns the processed-file ledger, optionally only failures.
func (d *Daemon) History(failedOnly bool) ([]state.HistoryEntry, error) {
	entries, err := d.store.History.Entries()
	if err != nil || !failedOnly {
		return entries, err
	}
	failed := entries[:0]
	for _, entry := range entries {
		if !entry.Success {
			failed = append(failed, entry)
		}
	}
	return failed, nil
}

// APIAddr returns the bound status API address, or "" when disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
