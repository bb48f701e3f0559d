package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vtranscoder/internal/daemonctl"
	"vtranscoder/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the engine as a background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := ctx.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: path,
				LogLevel:   startLogLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	var (
		stopWait  time.Duration
		stopForce bool
	)
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the engine to stop after cancelling the current job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, store.Stop, stopWait, stopForce)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case result.ForcedKill:
				fmt.Fprintf(stdout, "Daemon did not stop in %s; killed pid %d\n", stopWait, result.PID)
			case result.Stopped:
				fmt.Fprintln(stdout, "Daemon stopped")
			default:
				fmt.Fprintln(stdout, "Stop requested; the daemon will exit once the current job is cancelled")
			}
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&stopWait, "wait", 10*time.Second, "How long to wait for the daemon to exit")
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Kill the daemon if it is still running after --wait")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine, progress and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusJSONView(snap))
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Engine", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range engineLines(snap, daemonrun.CurrentLogPath(cfg), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(snap.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range snap.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Current Job", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := progressRows(snap.Progress)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Idle")
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func engineLines(snap daemonctl.Snapshot, logPath string, colorize bool) []string {
	lines := make([]string, 0, 5)
	if snap.Running {
		message := "Running"
		if snap.PID > 0 {
			message = fmt.Sprintf("Running (pid %d)", snap.PID)
		}
		lines = append(lines, renderStatusLine("vtranscoder", statusOK, message, colorize))
	} else {
		lines = append(lines, renderStatusLine("vtranscoder", statusWarn, "Not running", colorize))
	}
	if snap.StopPending {
		lines = append(lines, renderStatusLine("Stop request", statusWarn, "Pending", colorize))
	}
	historyKind := statusOK
	if snap.Failed > 0 {
		historyKind = statusWarn
	}
	lines = append(lines, renderStatusLine("History", historyKind,
		fmt.Sprintf("%d processed, %d failed", snap.Processed, snap.Failed), colorize))
	if snap.ProgressErr != nil {
		lines = append(lines, renderStatusLine("Progress", statusError, snap.ProgressErr.Error(), colorize))
	}
	if strings.TrimSpace(logPath) != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, logPath, colorize))
	}
	return lines
}

type statusView struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid,omitempty"`
	StopPending  bool   `json:"stopPending"`
	Processed    int    `json:"processed"`
	Failed       int    `json:"failed"`
	Progress     any    `json:"progress"`
	ProgressErr  string `json:"progressError,omitempty"`
	Dependencies any    `json:"dependencies"`
	Checks       any    `json:"checks"`
}

func statusJSONView(snap daemonctl.Snapshot) statusView {
	view := statusView{
		Running:      snap.Running,
		PID:          snap.PID,
		StopPending:  snap.StopPending,
		Processed:    snap.Processed,
		Failed:       snap.Failed,
		Progress:     snap.Progress,
		Dependencies: snap.Dependencies,
		Checks:       snap.Checks,
	}
	if snap.ProgressErr != nil {
		view.ProgressErr = snap.ProgressErr.Error()
	}
	return view
}
