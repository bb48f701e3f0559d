package encoding

import "vtranscoder/internal/config"

// Mode names how a job produces its output.
type Mode string

const (
	ModeHandBrake Mode = "handbrake"
	ModeFFmpeg    Mode = "ffmpeg"
	ModeCopy      Mode = "copy"
)

// SelectMode maps the encoder settings to a Mode. use_ffmpeg wins over the
// HandBrake switch.
func SelectMode(cfg *config.Config) Mode {
	switch {
	case cfg.Encoder.UseFFmpeg:
		return ModeFFmpeg
	case cfg.Encoder.Enabled:
		return ModeHandBrake
	default:
		return ModeCopy
	}
}

func (m Mode) verb() string {
	if m == ModeCopy {
		return "Copying"
	}
	return "Encoding"
}
