package subtitles

import (
	"slices"
	"strings"
)

const (
	// SubsDirName is the folder next to the output video holding subtitles.
	SubsDirName = "subs"
	// MinSubtitleBytes is the smallest subtitle file kept. Smaller outputs
	// are treated as failed writes and deleted.
	MinSubtitleBytes = 1024
)

var codecExtensions = map[string]string{
	"subrip":            "srt",
	"srt":               "srt",
	"ass":               "ass",
	"ssa":               "ass",
	"webvtt":            "vtt",
	"vtt":               "vtt",
	"mov_text":          "srt",
	"hdmv_pgs_subtitle": "sup",
	"dvd_subtitle":      "sub",
}

// nativeFormats lists text codecs that can be stream-copied into a file of
// the matching extension.
var nativeFormats = map[string]string{
	"subrip": "srt",
	"srt":    "srt",
	"ass":    "ass",
	"ssa":    "ass",
	"webvtt": "vtt",
	"vtt":    "vtt",
}

// DetermineOutputFormat picks the file extension for an extracted stream.
// The codec's natural extension wins when allowed; otherwise the first
// allowed format is used. An empty allow-list accepts the natural one.
func DetermineOutputFormat(codec string, allowed []string) string {
	format, ok := codecExtensions[strings.ToLower(codec)]
	if !ok {
		format = "srt"
	}
	if len(allowed) == 0 || slices.Contains(allowed, format) {
		return format
	}
	return allowed[0]
}

// IsNativeFormat reports whether codec can be copied without conversion
// into a file with extension format.
func IsNativeFormat(codec, format string) bool {
	native, ok := nativeFormats[strings.ToLower(codec)]
	return ok && native == format
}

// FFmpegFormat maps a subtitle extension to ffmpeg's muxer name.
func FFmpegFormat(ext string) string {
	switch strings.ToLower(ext) {
	case "ass", "ssa":
		return "ass"
	case "vtt":
		return "webvtt"
	case "sub":
		return "microdvd"
	default:
		return "srt"
	}
}

func overwriteFlag(overwrite bool) string {
	if overwrite {
		return "-y"
	}
	return "-n"
}
