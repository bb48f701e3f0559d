package config

const (
	defaultConfigPath           = "~/.config/vtranscoder/config.toml"
	projectConfigName           = "vtranscoder.toml"
	defaultOutputDir            = "~/Videos/transcoded"
	defaultStateDir             = "~/.local/share/vtranscoder/state"
	defaultLogDir               = "~/.local/share/vtranscoder/logs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultOutputExtension      = "mp4"
	defaultHandBrakePath        = "HandBrakeCLI"
	defaultHandBrakeParameters  = `--preset "Fast 1080p30" -e x265 -q 22 --all-audio --all-subtitles`
	defaultFFmpegPath           = "ffmpeg"
	defaultScheduleStart        = "05:00"
	defaultScheduleEnd          = "06:00"
	defaultCheckIntervalMinutes = 5
	defaultOpenSubtitlesBaseURL = "https://api.opensubtitles.com/api/v1"
	defaultOpenSubtitlesTimeout = 30
	defaultNotifyRequestTimeout = 10
	defaultAPIBind              = "127.0.0.1:7489"
)

var (
	defaultFileExtensions  = []string{".mp4", ".avi", ".mkv", ".mov"}
	defaultSubtitleFormats = []string{"srt", "ass", "vtt"}
	defaultLanguages       = []string{"en", "sl"}
	defaultDays            = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Output: Output{
			Extension:               defaultOutputExtension,
			PreserveFolderStructure: true,
			FileExtensions:          append([]string(nil), defaultFileExtensions...),
		},
		Encoder: Encoder{
			Enabled:             true,
			HandBrakePath:       defaultHandBrakePath,
			HandBrakeParameters: defaultHandBrakeParameters,
			FFmpegPath:          defaultFFmpegPath,
		},
		Schedule: Schedule{
			Start:                defaultScheduleStart,
			End:                  defaultScheduleEnd,
			CheckIntervalMinutes: defaultCheckIntervalMinutes,
			Days:                 append([]string(nil), defaultDays...),
		},
		Subtitles: Subtitles{
			Formats:               append([]string(nil), defaultSubtitleFormats...),
			ConvertToSRTIfMissing: true,
			CopyExternal:          true,
			Languages:             append([]string(nil), defaultLanguages...),
		},
		OpenSubtitles: OpenSubtitles{
			BaseURL:        defaultOpenSubtitlesBaseURL,
			RequestTimeout: defaultOpenSubtitlesTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Errors:         true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
	}
}
