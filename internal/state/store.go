package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Document names inside the state directory.
const (
	HistoryFile    = "history.json"
	ProgressFile   = "progress.json"
	StopSignalFile = "stop.signal"
)

// Store groups the shared documents of one state directory.
type Store struct {
	Dir      string
	History  *History
	Progress *Progress
	Stop     *StopSignal
}

// Open prepares dir and returns the documents it holds.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{
		Dir:      dir,
		History:  NewHistory(filepath.Join(dir, HistoryFile), logger),
		Progress: NewProgress(filepath.Join(dir, ProgressFile)),
		Stop:     NewStopSignal(filepath.Join(dir, StopSignalFile)),
	}, nil
}
