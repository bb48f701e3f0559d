package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeEncoder()
	c.normalizeSchedule()
	c.normalizeSubtitles()
	c.normalizeOpenSubtitles()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = envFallback(c.API.Token, "VTRANSCODER_API_TOKEN")
	return nil
}

func (c *Config) normalizePaths() error {
	dirs := make([]string, 0, len(c.Paths.MonitoredDirs))
	seen := make(map[string]struct{}, len(c.Paths.MonitoredDirs))
	for i, dir := range c.Paths.MonitoredDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("paths.monitored_dirs[%d]: %w", i, err)
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		dirs = append(dirs, expanded)
	}
	c.Paths.MonitoredDirs = dirs

	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Extension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Output.Extension)), ".")
	if c.Output.Extension == "" {
		c.Output.Extension = defaultOutputExtension
	}
	c.Output.FileExtensions = normalizeList(c.Output.FileExtensions, func(ext string) string {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	})
}

func (c *Config) normalizeEncoder() {
	c.Encoder.HandBrakePath = strings.TrimSpace(c.Encoder.HandBrakePath)
	if c.Encoder.HandBrakePath == "" {
		c.Encoder.HandBrakePath = defaultHandBrakePath
	}
	c.Encoder.FFmpegPath = strings.TrimSpace(c.Encoder.FFmpegPath)
	if c.Encoder.FFmpegPath == "" {
		c.Encoder.FFmpegPath = defaultFFmpegPath
	}
	c.Encoder.HandBrakeParameters = strings.TrimSpace(c.Encoder.HandBrakeParameters)
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Start = strings.TrimSpace(c.Schedule.Start)
	if c.Schedule.Start == "" {
		c.Schedule.Start = defaultScheduleStart
	}
	c.Schedule.End = strings.TrimSpace(c.Schedule.End)
	if c.Schedule.End == "" {
		c.Schedule.End = defaultScheduleEnd
	}
	c.Schedule.Days = normalizeList(c.Schedule.Days, strings.ToLower)
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.Formats = normalizeList(c.Subtitles.Formats, func(format string) string {
		return strings.TrimPrefix(strings.ToLower(format), ".")
	})
	c.Subtitles.Languages = normalizeList(c.Subtitles.Languages, strings.ToLower)
}

func (c *Config) normalizeOpenSubtitles() {
	c.OpenSubtitles.AppName = strings.TrimSpace(c.OpenSubtitles.AppName)
	c.OpenSubtitles.APIKey = envFallback(c.OpenSubtitles.APIKey, "OPENSUBTITLES_API_KEY")
	c.OpenSubtitles.Username = envFallback(c.OpenSubtitles.Username, "OPENSUBTITLES_USERNAME")
	c.OpenSubtitles.Password = envFallback(c.OpenSubtitles.Password, "OPENSUBTITLES_PASSWORD")
	c.OpenSubtitles.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenSubtitles.BaseURL), "/")
	if c.OpenSubtitles.BaseURL == "" {
		c.OpenSubtitles.BaseURL = defaultOpenSubtitlesBaseURL
	}
	if c.OpenSubtitles.RequestTimeout <= 0 {
		c.OpenSubtitles.RequestTimeout = defaultOpenSubtitlesTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = envFallback(c.Notifications.NtfyTopic, "NTFY_TOPIC")
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// envFallback returns the trimmed value, or the named environment variable
// when the value is empty.
func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

// normalizeList trims, transforms and de-duplicates entries, dropping blanks.
func normalizeList(values []string, transform func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		value = transform(value)
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
