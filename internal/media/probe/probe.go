package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vtranscoder/internal/proc"
)

// Unknown is reported for codecs the output does not mention.
const Unknown = "unknown"

// MaxChannels is the highest channel count kept without a downmix.
const MaxChannels = 6

// SubtitleStream describes one embedded subtitle stream.
type SubtitleStream struct {
	Index    int
	Language string
	Codec    string
}

// Info is the parsed ffmpeg stream summary.
type Info struct {
	VideoCodec    string
	AudioCodec    string
	AudioChannels string
	HasSubtitles  bool
	Subtitles     []SubtitleStream
	Duration      time.Duration
}

var (
	videoPattern    = regexp.MustCompile(`(?i)Stream #\d+:\d+.*?: Video: ([^\s,]+)`)
	audioPattern    = regexp.MustCompile(`(?i)Stream #\d+:\d+.*?: Audio: ([^\s,]+)`)
	channelPattern  = regexp.MustCompile(`(?i)Audio:.*?(\d+\.\d+|\d+)\s*channels?|Audio:.*?(mono|stereo|5\.1|7\.1)`)
	durationPattern = regexp.MustCompile(`(?i)Duration: (\d+):(\d+):(\d+\.\d+)`)
	subtitlePattern = regexp.MustCompile(`(?i)Stream #\d+:\d+.*?: Subtitle:`)
	languagePattern = regexp.MustCompile(`\(([a-z]{2,3})\)`)
)

// Run probes input with ffmpeg. ffmpeg exits nonzero when no output file is
// given, so the exit status is ignored whenever an input summary was printed.
func Run(ctx context.Context, exec proc.Executor, ffmpeg, input string) (Info, error) {
	ffmpeg = strings.TrimSpace(ffmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(input) == "" {
		return Info{}, errors.New("probe: empty input path")
	}
	if exec == nil {
		exec = proc.CommandExecutor{}
	}

	var output strings.Builder
	collect := func(line string) {
		output.WriteString(line)
		output.WriteByte('\n')
	}
	err := exec.Run(ctx, ffmpeg, []string{"-hide_banner", "-i", input}, collect, collect)
	if ctx.Err() != nil {
		return Info{}, fmt.Errorf("probe %s: %w", input, context.Cause(ctx))
	}
	text := output.String()
	if err != nil && !strings.Contains(text, "Input #") {
		return Info{}, fmt.Errorf("probe %s: %w: %s", input, err, lastLine(text))
	}
	return Parse(text), nil
}

// Parse extracts stream details from ffmpeg stderr.
func Parse(output string) Info {
	info := Info{
		VideoCodec: firstGroup(videoPattern, output),
		AudioCodec: firstGroup(audioPattern, output),
	}
	if m := channelPattern.FindStringSubmatch(output); m != nil {
		if m[1] != "" {
			info.AudioChannels = m[1]
		} else {
			info.AudioChannels = strings.ToLower(m[2])
		}
	}
	if m := durationPattern.FindStringSubmatch(output); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.ParseFloat(m[3], 64)
		info.Duration = time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(math.Round(seconds*float64(time.Second)))
	}
	info.HasSubtitles = subtitlePattern.MatchString(output)
	info.Subtitles = ParseSubtitleStreams(output)
	return info
}

// ParseSubtitleStreams returns every subtitle stream line in output, in order.
func ParseSubtitleStreams(output string) []SubtitleStream {
	var streams []SubtitleStream
	for line := range strings.Lines(output) {
		if !strings.Contains(line, "Stream #") || !strings.Contains(line, "Subtitle:") {
			continue
		}
		stream, ok := parseSubtitleLine(line)
		if !ok {
			continue
		}
		streams = append(streams, stream)
	}
	return streams
}

// parseSubtitleLine reads lines like
// "Stream #0:3(eng): Subtitle: subrip (default)". MPEG-TS sources add a
// stream id, as in "Stream #0:2[0x1202](eng)".
func parseSubtitleLine(line string) (SubtitleStream, bool) {
	_, afterStream, _ := strings.Cut(line, "Stream #")
	fields := strings.Split(afterStream, ":")
	if len(fields) < 2 {
		return SubtitleStream{}, false
	}
	indexText := fields[1]
	if cut := strings.IndexAny(indexText, "(["); cut >= 0 {
		indexText = indexText[:cut]
	}
	index, err := strconv.Atoi(strings.TrimSpace(indexText))
	if err != nil {
		return SubtitleStream{}, false
	}

	stream := SubtitleStream{Index: index, Language: "und"}
	if m := languagePattern.FindStringSubmatch(line); m != nil {
		stream.Language = m[1]
	}
	_, afterCodec, _ := strings.Cut(line, "Subtitle:")
	if codec := strings.Fields(afterCodec); len(codec) > 0 {
		stream.Codec = strings.ToLower(strings.TrimRight(codec[0], ","))
	}
	return stream, true
}

// ChannelCount resolves the channel description to a count, or -1 when it
// cannot be determined. Fractional layouts such as 5.1 round up.
func (i Info) ChannelCount() int {
	switch strings.ToLower(strings.TrimSpace(i.AudioChannels)) {
	case "":
		return -1
	case "mono":
		return 1
	case "stereo":
		return 2
	case "5.1":
		return 6
	case "7.1":
		return 8
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(i.AudioChannels), 64)
	if err != nil || value <= 0 {
		return -1
	}
	return int(math.Ceil(value))
}

// TargetChannels is the channel count for a transcoded audio track: the
// source count capped at MaxChannels, or MaxChannels when unknown.
func (i Info) TargetChannels() int {
	count := i.ChannelCount()
	if count <= 0 || count > MaxChannels {
		return MaxChannels
	}
	return count
}

// NeedsDownmix reports whether the source layout exceeds MaxChannels.
func (i Info) NeedsDownmix() bool {
	text := strings.ToLower(strings.TrimSpace(i.AudioChannels))
	if strings.Contains(text, "7.1") || strings.Contains(text, "7.2") {
		return true
	}
	if value, err := strconv.ParseFloat(text, 64); err == nil {
		return value > MaxChannels
	}
	return false
}

// VideoCodecValid reports whether the video stream can be copied as is.
func (i Info) VideoCodecValid() bool {
	switch strings.ToLower(i.VideoCodec) {
	case "h264", "hevc", "h265":
		return true
	}
	return false
}

// AudioCodecValid reports whether the audio stream can be copied as is.
func (i Info) AudioCodecValid() bool {
	switch strings.ToLower(i.AudioCodec) {
	case "aac", "ac3":
		return !i.NeedsDownmix()
	}
	return false
}

func firstGroup(pattern *regexp.Regexp, text string) string {
	if m := pattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return Unknown
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return text[idx+1:]
	}
	return text
}
