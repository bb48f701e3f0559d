// Package daemonrun hosts the process-level wiring shared by the CLI "run"
// command and the standalone daemon binary.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vtranscoder/internal/config"
	"vtranscoder/internal/daemon"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/state"
	"vtranscoder/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Quiet drops stdout logging, leaving only the run log file.
	Quiet bool
}

const (
	runLogPrefix = "vtranscoder-"
	runLogName   = "vtranscoder.log"
)

// Run starts the engine and blocks until a signal, a stop request or a
// fatal error ends it. A stop request is a clean exit.
func Run(cmdCtx context.Context, cfg *config.Config, configPath string, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, runLogPrefix+runID+".log")
	logger, err := newRunLogger(cfg, logPath, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", runLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: runLogPrefix + "*.log", Exclude: []string{logPath}},
	)

	store, err := state.Open(cfg.Paths.StateDir, logger)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, configPath, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("vtranscoder starting",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("run_id", runID),
		logging.String("config", configPath),
		logging.String("log_path", logPath),
		logging.Int("pid", os.Getpid()),
	)

	err = d.Run(signalCtx)
	switch {
	case err == nil:
		logger.Info("vtranscoder shutting down")
		return nil
	case errors.Is(err, workflow.ErrStopRequested):
		logger.Info("vtranscoder stopped on request")
		return nil
	default:
		logging.ErrorWithContext(logger, "vtranscoder halted", "daemon_fatal",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the reported problem and start vtranscoder again"),
		)
		return err
	}
}

func newRunLogger(cfg *config.Config, logPath string, opts Options) (*slog.Logger, error) {
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	outputs := []string{"stdout", logPath}
	errOutputs := []string{"stderr", logPath}
	if opts.Quiet {
		outputs = []string{logPath}
		errOutputs = []string{logPath}
	}
	return logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: errOutputs,
		Development:      opts.Development,
	})
}

// ensureCurrentLogPointer points vtranscoder.log at the active run log.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, runLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// CurrentLogPath returns the log file of the latest run, or "" when none exists.
func CurrentLogPath(cfg *config.Config) string {
	if cfg == nil || cfg.Paths.LogDir == "" {
		return ""
	}
	pointer := filepath.Join(cfg.Paths.LogDir, runLogName)
	if target, err := filepath.EvalSymlinks(pointer); err == nil {
		return target
	}
	if _, err := os.Stat(pointer); err == nil {
		return pointer
	}
	return ""
}
