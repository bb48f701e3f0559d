package encoding

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"vtranscoder/internal/proc"
)

var (
	hbPercentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	hbFPSPattern     = regexp.MustCompile(`\((\d+(?:\.\d+)?)\s*fps`)
	hbETAPattern     = regexp.MustCompile(`ETA\s+(\d+)h(\d+)m(\d+)s`)
)

// HandBrakeArgs builds "-i in -o out" followed by the configured parameter
// string split shell-style.
func HandBrakeArgs(params, input, output string) ([]string, error) {
	extra, err := proc.SplitArgs(params)
	if err != nil {
		return nil, err
	}
	return append([]string{"-i", input, "-o", output}, extra...), nil
}

// ParseHandBrakeProgress reads a HandBrakeCLI status line such as
// "Encoding: task 1 of 1, 45.20 % (30.12 fps, avg 29.50 fps, ETA 00h12m34s)".
// Lines without a positive percentage are ignored. When the line carries no
// ETA one is derived from elapsed.
func ParseHandBrakeProgress(line string, elapsed time.Duration) (Progress, bool) {
	if !strings.Contains(line, "Encoding:") || !strings.Contains(line, "%") {
		return Progress{}, false
	}
	m := hbPercentPattern.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil || percent <= 0 {
		return Progress{}, false
	}

	p := Progress{Percent: percent}
	if m := hbFPSPattern.FindStringSubmatch(line); m != nil {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := hbETAPattern.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		p.ETA = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(s)*time.Second
	} else {
		p.ETA = LinearETA(elapsed, percent)
	}
	return p, true
}
