// Package daemonctl drives a running vtranscoder daemon from the CLI: launch
// it detached, ask it to stop and report whether it is alive. The daemon
// holds an flock lock for its lifetime, so lock state is the liveness probe.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vtranscoder/internal/config"
	"vtranscoder/internal/deps"
	"vtranscoder/internal/preflight"
	"vtranscoder/internal/state"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	Requested  bool
	Stopped    bool
	ForcedKill bool
	PID        int
}

// Snapshot is everything "vtranscoder status" reports.
type Snapshot struct {
	Running      bool
	PID          int
	StopPending  bool
	Progress     state.ProgressSnapshot
	ProgressErr  error
	Processed    int
	Failed       int
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// Launch starts a detached "vtranscoder run" process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"run", "--quiet"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches the daemon unless it already runs, then waits for
// it to take the lock.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		running, pid, err = ProcessInfo(cfg)
		if err == nil && running {
			return StartResult{State: StartStateStarted, PID: pid}, nil
		}
		time.Sleep(pollInterval)
	}
	return StartResult{}, fmt.Errorf("daemon failed to start within %s; see the run log in %s", waitTimeout, cfg.Paths.LogDir)
}

// ProcessInfo reports whether a daemon holds the lock and, when known, its PID.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("config is required")
	}
	running, err := lockHeld(cfg.LockPath())
	if err != nil || !running {
		return false, 0, err
	}
	return true, readPID(cfg.PIDPath()), nil
}

func lockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// RequestStop writes the stop marker the run loop polls. It works whether
// or not a daemon is running; an idle marker is honoured on the next start.
func RequestStop(stop *state.StopSignal) error {
	if stop == nil {
		return errors.New("stop signal unavailable")
	}
	return stop.Request(time.Now())
}

// WaitForShutdown polls until the daemon lock is released.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, _, err := ProcessInfo(cfg)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon still running after %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

// StopAndTerminate requests a graceful stop and waits gracePeriod for the
// daemon to finish its current job. With force set a daemon still alive
// afterwards is killed; the partial output is cleaned up by crash recovery
// on the next start.
func StopAndTerminate(cfg *config.Config, stop *state.StopSignal, gracePeriod time.Duration, force bool) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if err := RequestStop(stop); err != nil {
		return StopResult{}, fmt.Errorf("request stop: %w", err)
	}
	result := StopResult{Requested: true, PID: pid}

	if err := WaitForShutdown(cfg, gracePeriod); err == nil {
		result.Stopped = true
		return result, nil
	}
	if !force {
		return result, nil
	}
	killed, err := ForceKillProcess(cfg.PIDPath(), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	result.Stopped = true
	result.PID = killed
	return result, nil
}

// ForceKillProcess sends SIGKILL to the daemon and removes its pid file.
func ForceKillProcess(pidPath string, fallbackPID int) (int, error) {
	pid := readPID(pidPath)
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return pid, nil
}

// BuildStatusSnapshot gathers daemon, progress, history and dependency state.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config, store *state.Store) (Snapshot, error) {
	if cfg == nil || store == nil {
		return Snapshot{}, errors.New("config and state store are required")
	}
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Running:      running,
		PID:          pid,
		StopPending:  store.Stop.Requested(),
		Dependencies: preflight.CheckSystemDeps(ctx, cfg),
		Checks:       preflight.RunAll(ctx, cfg),
	}
	snap.Progress, snap.ProgressErr = store.Progress.Load()

	entries, err := store.History.Entries()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read history: %w", err)
	}
	for _, entry := range entries {
		if entry.Success {
			snap.Processed++
		} else {
			snap.Failed++
		}
	}
	return snap, nil
}
