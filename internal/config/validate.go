package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"vtranscoder/internal/deps"
)

// Validate ensures the configuration is usable. It checks the filesystem and
// PATH, so it reflects the host at the moment it runs.
func (c *Config) Validate() error {
	if err := c.validateBinaries(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateOpenSubtitles(); err != nil {
		return err
	}
	if len(c.Output.FileExtensions) == 0 {
		return errors.New("output.file_extensions must include at least one extension")
	}
	return nil
}

func (c *Config) validateBinaries() error {
	var reqs []deps.Requirement
	if c.HandBrakeRequired() {
		reqs = append(reqs, deps.Requirement{Name: "HandBrakeCLI", Command: c.Encoder.HandBrakePath})
	}
	if c.FFmpegRequired() {
		reqs = append(reqs, deps.Requirement{Name: "FFmpeg", Command: c.Encoder.FFmpegPath})
	}
	for _, status := range deps.CheckBinaries(reqs) {
		if !status.Available {
			return fmt.Errorf("%s: %s (set encoder.%s)", status.Name, status.Detail, binaryKey(status.Name))
		}
	}
	return nil
}

func binaryKey(name string) string {
	if name == "FFmpeg" {
		return "ffmpeg_path"
	}
	return "handbrake_path"
}

func (c *Config) validatePaths() error {
	if len(c.Paths.MonitoredDirs) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("paths.monitored_dirs must list at least one directory. Edit %s (create with 'vtranscoder config init')", defaultPath)
	}
	for _, dir := range c.Paths.MonitoredDirs {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("monitored directory %q does not exist", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("monitored directory %q is not a directory", dir)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if err := ensureWritableDir(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

// ensureWritableDir creates dir when absent and verifies the process may write to it.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %q: %w", dir, err)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%q is not writable: %w", dir, err)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.CheckIntervalMinutes < 1 {
		return errors.New("schedule.check_interval_minutes must be at least 1")
	}
	w, err := c.Window()
	if err != nil {
		return err
	}
	if c.Schedule.Enabled && !w.AnyDay() {
		return errors.New("schedule.days must enable at least one weekday when schedule.enabled is true")
	}
	return nil
}

func (c *Config) validateOpenSubtitles() error {
	if !c.OpenSubtitles.Enabled {
		return nil
	}
	if c.OpenSubtitles.AppName == "" {
		return errors.New("opensubtitles.app_name must be set when opensubtitles.enabled is true")
	}
	if c.OpenSubtitles.APIKey == "" {
		return errors.New("opensubtitles.api_key must be set when opensubtitles.enabled is true (or set OPENSUBTITLES_API_KEY)")
	}
	if (c.OpenSubtitles.Username == "") != (c.OpenSubtitles.Password == "") {
		return errors.New("opensubtitles.username and opensubtitles.password must be set together")
	}
	return nil
}

// Warnings lists settings that are valid but likely unintended.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Output.DeleteOriginal {
		warnings = append(warnings, "output.delete_original is enabled: source files are removed after a successful transcode")
	}
	output := foldPath(c.Paths.OutputDir)
	for _, dir := range c.Paths.MonitoredDirs {
		monitored := foldPath(dir)
		if within(output, monitored) || within(monitored, output) {
			warnings = append(warnings, fmt.Sprintf("output directory %q overlaps monitored directory %q", c.Paths.OutputDir, dir))
		}
	}
	return warnings
}

func foldPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// within reports whether child equals parent or lies beneath it.
func within(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}
