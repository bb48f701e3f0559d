package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// StopSignal is a presence marker requesting the engine to stop. It survives
// restarts until the engine acts on it.
type StopSignal struct {
	path string
}

// NewStopSignal returns a StopSignal backed by the marker file at path.
func NewStopSignal(path string) *StopSignal {
	return &StopSignal{path: path}
}

// Path returns the marker path.
func (s *StopSignal) Path() string {
	return s.path
}

// Request creates the marker, recording at as its content.
func (s *StopSignal) Request(at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	if err := renameio.WriteFile(s.path, []byte(at.UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write stop signal: %w", err)
	}
	return nil
}

// Requested reports whether the marker is present.
func (s *StopSignal) Requested() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// RequestedAt returns the time recorded in the marker. An unreadable
// timestamp falls back to the marker's modification time.
func (s *StopSignal) RequestedAt() (time.Time, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read stop signal: %w", err)
	}
	if at, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(string(data))); parseErr == nil {
		return at, true, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, true, nil
	}
	return info.ModTime(), true, nil
}

// Clear removes the marker. Clearing an absent marker is not an error.
func (s *StopSignal) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear stop signal: %w", err)
	}
	return nil
}
