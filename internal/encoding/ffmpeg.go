package encoding

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vtranscoder/internal/media/probe"
)

// MaxFFmpegPercent caps ffmpeg progress until the process exits.
const MaxFFmpegPercent = 99.9

var ffmpegTimePattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// Plan is the ffmpeg decision for one source.
type Plan struct {
	TranscodeVideo bool
	TranscodeAudio bool
	Downmix        bool
	Remux          bool
	DropSubtitles  bool
	// Channels is the audio channel count used when transcoding audio.
	Channels int
}

// NewPlan derives the work needed to turn input into output from its probe.
func NewPlan(info probe.Info, input, output string) Plan {
	return Plan{
		TranscodeVideo: !info.VideoCodecValid(),
		TranscodeAudio: !info.AudioCodecValid(),
		Downmix:        info.NeedsDownmix(),
		Remux:          !strings.EqualFold(filepath.Ext(input), filepath.Ext(output)),
		DropSubtitles:  info.HasSubtitles,
		Channels:       info.TargetChannels(),
	}
}

// CopyOnly reports whether the source can be copied byte for byte.
func (p Plan) CopyOnly() bool {
	return !p.TranscodeVideo && !p.TranscodeAudio && !p.Downmix && !p.Remux && !p.DropSubtitles
}

// Args builds the ffmpeg command line. Only the first video and audio
// mappings are kept, which drops subtitle and data streams.
func (p Plan) Args(input, output string, overwrite bool) []string {
	args := []string{"-i", input}
	if p.TranscodeVideo {
		args = append(args, "-c:v", "libx265", "-preset", "medium", "-crf", "23")
	} else {
		args = append(args, "-c:v", "copy")
	}
	if p.TranscodeAudio {
		channels := p.Channels
		if channels <= 0 {
			channels = probe.MaxChannels
		}
		args = append(args, "-c:a", "aac", "-b:a", "384k", "-ac", strconv.Itoa(channels))
	} else {
		args = append(args, "-c:a", "copy")
	}
	args = append(args, "-map", "0:v", "-map", "0:a")
	if overwrite {
		args = append(args, "-y")
	} else {
		args = append(args, "-n")
	}
	return append(args, output)
}

// ParseFFmpegProgress converts a "time=HH:MM:SS.ss" status line into a
// percentage of total, clamped to [0, MaxFFmpegPercent].
func ParseFFmpegProgress(line string, total, elapsed time.Duration) (Progress, bool) {
	if total <= 0 {
		return Progress{}, false
	}
	m := ffmpegTimePattern.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.ParseFloat(m[3], 64)
	position := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs*float64(time.Second))

	percent := float64(position) / float64(total) * 100
	percent = min(max(percent, 0), MaxFFmpegPercent)
	if percent <= 0 {
		return Progress{}, false
	}
	return Progress{Percent: percent, ETA: LinearETA(elapsed, percent)}, true
}
