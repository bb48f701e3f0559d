package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vtranscoder/internal/schedule"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	MonitoredDirs []string `toml:"monitored_dirs"`
	OutputDir     string   `toml:"output_dir"`
	StateDir      string   `toml:"state_dir"`
	LogDir        string   `toml:"log_dir"`
}

// Output controls where and how finished files are written.
type Output struct {
	Extension               string   `toml:"extension"`
	PreserveFolderStructure bool     `toml:"preserve_folder_structure"`
	OverwriteExisting       bool     `toml:"overwrite_existing"`
	DeleteOriginal          bool     `toml:"delete_original"`
	FileExtensions          []string `toml:"file_extensions"`
}

// Encoder selects and configures the external encoder.
type Encoder struct {
	Enabled             bool   `toml:"enabled"`
	HandBrakePath       string `toml:"handbrake_path"`
	HandBrakeParameters string `toml:"handbrake_parameters"`
	FFmpegPath          string `toml:"ffmpeg_path"`
	UseFFmpeg           bool   `toml:"use_ffmpeg"`
}

// Schedule restricts processing to a daily window.
type Schedule struct {
	Enabled              bool     `toml:"enabled"`
	Start                string   `toml:"start"`
	End                  string   `toml:"end"`
	CheckIntervalMinutes int      `toml:"check_interval_minutes"`
	Days                 []string `toml:"days"`
}

// Subtitles configures embedded extraction, conversion and external copies.
type Subtitles struct {
	Extract               bool     `toml:"extract"`
	Formats               []string `toml:"formats"`
	ConvertToSRTIfMissing bool     `toml:"convert_to_srt_if_missing"`
	CopyExternal          bool     `toml:"copy_external"`
	Languages             []string `toml:"languages"`
	OverwriteExisting     bool     `toml:"overwrite_existing"`
}

// OpenSubtitles configures the remote subtitle provider.
type OpenSubtitles struct {
	Enabled        bool   `toml:"enabled"`
	AppName        string `toml:"app_name"`
	APIKey         string `toml:"api_key"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	BaseURL        string `toml:"base_url"`
	FixCorrupted   bool   `toml:"fix_corrupted"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Errors         bool   `toml:"errors"`
}

// API configures the optional read-only status server.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Config encapsulates all configuration values for vtranscoder.
//
// Configuration sections by subsystem:
//   - Paths: monitored, output, state and log directories
//   - Output: naming and overwrite policy for finished files
//   - Encoder: HandBrake or ffmpeg invocation
//   - Schedule: daily processing window
//   - Subtitles: extraction, SRT conversion, external copies
//   - OpenSubtitles: remote subtitle download
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - API: status server bind address
type Config struct {
	Paths         Paths         `toml:"paths"`
	Output        Output        `toml:"output"`
	Encoder       Encoder       `toml:"encoder"`
	Schedule      Schedule      `toml:"schedule"`
	Subtitles     Subtitles     `toml:"subtitles"`
	OpenSubtitles OpenSubtitles `toml:"opensubtitles"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := Read(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolvedPath, exists, err
	}
	return cfg, resolvedPath, exists, nil
}

// Read locates, parses and normalizes a configuration file without validating
// it. Commands that only need state paths use it so a half-edited document
// does not block them.
func Read(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Window converts the schedule section into a schedule.Window.
func (c *Config) Window() (schedule.Window, error) {
	w := schedule.Window{Enabled: c.Schedule.Enabled}
	var err error
	if w.Start, err = schedule.ParseClock(c.Schedule.Start); err != nil {
		return w, fmt.Errorf("schedule.start: %w", err)
	}
	if w.End, err = schedule.ParseClock(c.Schedule.End); err != nil {
		return w, fmt.Errorf("schedule.end: %w", err)
	}
	if w.Days, err = schedule.ParseDays(c.Schedule.Days); err != nil {
		return w, fmt.Errorf("schedule.days: %w", err)
	}
	return w, nil
}

// CheckInterval is the pause between scans while inside the window.
func (c *Config) CheckInterval() time.Duration {
	if c.Schedule.CheckIntervalMinutes <= 0 {
		return defaultCheckIntervalMinutes * time.Minute
	}
	return time.Duration(c.Schedule.CheckIntervalMinutes) * time.Minute
}

// TranscodingEnabled reports whether files are re-encoded rather than copied.
func (c *Config) TranscodingEnabled() bool {
	return c.Encoder.Enabled || c.Encoder.UseFFmpeg
}

// FFmpegRequired reports whether any enabled stage invokes ffmpeg.
func (c *Config) FFmpegRequired() bool {
	return c.Encoder.UseFFmpeg || c.Subtitles.Extract || c.Subtitles.ConvertToSRTIfMissing
}

// HandBrakeRequired reports whether the HandBrake encoder is in use.
func (c *Config) HandBrakeRequired() bool {
	return c.Encoder.Enabled && !c.Encoder.UseFFmpeg
}

// OpenSubtitlesTimeout returns the HTTP timeout for provider requests.
func (c *Config) OpenSubtitlesTimeout() time.Duration {
	return time.Duration(c.OpenSubtitles.RequestTimeout) * time.Second
}

// HistoryPath locates the processed-file ledger.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.json")
}

// ProgressPath locates the live progress snapshot.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.Paths.StateDir, "progress.json")
}

// StopSignalPath locates the stop request marker.
func (c *Config) StopSignalPath() string {
	return filepath.Join(c.Paths.StateDir, "stop.signal")
}

// PIDPath records the process ID of the running daemon.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "vtranscoder.pid")
}

// LockPath is the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vtranscoder.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
