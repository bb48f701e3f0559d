package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatusIdle is the status text of a cleared snapshot.
const StatusIdle = "Idle"

// Duration is a time.Duration serialised as "hh:mm:ss".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatDuration(time.Duration(d)))
}

// UnmarshalJSON implements json.Unmarshaler. It accepts "hh:mm:ss" strings
// and plain numbers of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var seconds float64
		if numErr := json.Unmarshal(data, &seconds); numErr != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	parsed, err := ParseDuration(text)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// FormatDuration renders d as hh:mm:ss, truncating fractional seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// ParseDuration parses an hh:mm:ss value. An empty string is zero.
func ParseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q must be hh:mm:ss", text)
	}
	var total float64
	for i, unit := range []float64{3600, 60, 1} {
		n, err := strconv.ParseFloat(parts[i], 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("duration %q must be hh:mm:ss", text)
		}
		total += n * unit
	}
	return time.Duration(total * float64(time.Second)), nil
}

// SubtitleProgress tracks the subtitle stage inside a job.
type SubtitleProgress struct {
	Active    bool   `json:"isActive"`
	Status    string `json:"status,omitempty"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// ProgressSnapshot is the live view of the job in flight. Encoding is set
// once the encoder owns OutputFile; before that OutputFile is empty.
type ProgressSnapshot struct {
	Active      bool             `json:"isActive"`
	Encoding    bool             `json:"isEncoding"`
	CurrentFile string           `json:"currentFile,omitempty"`
	OutputFile  string           `json:"outputFile,omitempty"`
	Percent     float64          `json:"percentComplete"`
	StartTime   time.Time        `json:"startTime,omitzero"`
	Status      string           `json:"status"`
	ETA         Duration         `json:"estimatedTimeRemaining"`
	FPS         float64          `json:"fps,omitempty"`
	Subtitles   SubtitleProgress `json:"subtitles"`
	UpdatedAt   time.Time        `json:"updatedAt,omitzero"`
}

// IdleSnapshot returns the snapshot written when nothing is running.
func IdleSnapshot() ProgressSnapshot {
	return ProgressSnapshot{Status: StatusIdle}
}

// Progress persists the ProgressSnapshot. There is a single writer.
type Progress struct {
	path string
	now  func() time.Time
}

// NewProgress returns a Progress backed by the JSON document at path.
func NewProgress(path string) *Progress {
	return &Progress{path: path, now: time.Now}
}

// Path returns the backing document path.
func (p *Progress) Path() string {
	return p.path
}

// Load returns the persisted snapshot, or an idle snapshot when none exists.
func (p *Progress) Load() (ProgressSnapshot, error) {
	snapshot := IdleSnapshot()
	if _, err := readJSON(p.path, &snapshot); err != nil {
		return IdleSnapshot(), err
	}
	return snapshot, nil
}

// Save replaces the persisted snapshot.
func (p *Progress) Save(snapshot ProgressSnapshot) error {
	snapshot.Percent = clampPercent(snapshot.Percent)
	snapshot.UpdatedAt = p.now()
	return withLock(p.path, func() error {
		return writeJSON(p.path, snapshot)
	})
}

// Update applies fn to the persisted snapshot and saves the result.
func (p *Progress) Update(fn func(*ProgressSnapshot)) error {
	return withLock(p.path, func() error {
		snapshot := IdleSnapshot()
		if _, err := readJSON(p.path, &snapshot); err != nil {
			snapshot = IdleSnapshot()
		}
		fn(&snapshot)
		snapshot.Percent = clampPercent(snapshot.Percent)
		snapshot.UpdatedAt = p.now()
		return writeJSON(p.path, snapshot)
	})
}

// Clear resets the document to an idle snapshot.
func (p *Progress) Clear() error {
	return p.Save(IdleSnapshot())
}

func clampPercent(percent float64) float64 {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
