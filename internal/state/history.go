package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"vtranscoder/internal/logging"
)

// HistoryEntry records the latest attempt for one source file.
type HistoryEntry struct {
	SourcePath string    `json:"sourceFilePath"`
	OutputPath string    `json:"outputFilePath"`
	Timestamp  time.Time `json:"transcodedDate"`
	Success    bool      `json:"success"`
}

type historyDocument struct {
	Entries []HistoryEntry `json:"entries"`
}

// History is the persisted processed-file ledger. It holds at most one entry
// per source path; source paths compare case-insensitively.
type History struct {
	path   string
	logger *slog.Logger
}

// NewHistory returns a History backed by the JSON document at path.
func NewHistory(path string, logger *slog.Logger) *History {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &History{path: path, logger: logging.NewComponentLogger(logger, "history")}
}

// Path returns the backing document path.
func (h *History) Path() string {
	return h.path
}

// Entries returns every entry, newest first.
func (h *History) Entries() ([]HistoryEntry, error) {
	var doc historyDocument
	if _, err := readJSON(h.path, &doc); err != nil {
		return nil, err
	}
	entries := doc.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Ledger loads the document once for repeated lookups.
func (h *History) Ledger() (Ledger, error) {
	var doc historyDocument
	if _, err := readJSON(h.path, &doc); err != nil {
		return Ledger{}, err
	}
	return newLedger(doc.Entries), nil
}

// Lookup returns the entry for source, if any.
func (h *History) Lookup(source string) (HistoryEntry, bool, error) {
	ledger, err := h.Ledger()
	if err != nil {
		return HistoryEntry{}, false, err
	}
	entry, ok := ledger.Lookup(source)
	return entry, ok, nil
}

// Record replaces any entry for entry.SourcePath with entry.
func (h *History) Record(entry HistoryEntry) error {
	if strings.TrimSpace(entry.SourcePath) == "" {
		return errors.New("history entry requires a source path")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return h.mutate(func(entries []HistoryEntry) []HistoryEntry {
		return append(removeSource(entries, entry.SourcePath), entry)
	})
}

// Remove deletes the entry for source. Removing an unknown source is not an error.
func (h *History) Remove(source string) error {
	return h.mutate(func(entries []HistoryEntry) []HistoryEntry {
		return removeSource(entries, source)
	})
}

// RemoveFailed drops every unsuccessful entry and reports how many were removed.
func (h *History) RemoveFailed() (int, error) {
	removed := 0
	err := h.mutate(func(entries []HistoryEntry) []HistoryEntry {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Success {
				kept = append(kept, entry)
				continue
			}
			removed++
		}
		return kept
	})
	return removed, err
}

// Clear removes every entry.
func (h *History) Clear() error {
	return h.mutate(func([]HistoryEntry) []HistoryEntry { return nil })
}

func (h *History) mutate(fn func([]HistoryEntry) []HistoryEntry) error {
	return withLock(h.path, func() error {
		var doc historyDocument
		if _, err := readJSON(h.path, &doc); err != nil {
			h.logger.Warn("history unreadable; starting fresh",
				logging.String(logging.FieldEventType, "history_load_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or delete "+h.path),
				logging.String(logging.FieldImpact, "previously processed files may be transcoded again"),
			)
			doc = historyDocument{}
		}
		doc.Entries = fn(doc.Entries)
		if doc.Entries == nil {
			doc.Entries = []HistoryEntry{}
		}
		if err := writeJSON(h.path, doc); err != nil {
			return fmt.Errorf("persist history: %w", err)
		}
		return nil
	})
}

func removeSource(entries []HistoryEntry, source string) []HistoryEntry {
	kept := entries[:0]
	for _, entry := range entries {
		if !strings.EqualFold(entry.SourcePath, source) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// Ledger is an in-memory view of History keyed by case-folded source path.
type Ledger struct {
	bySource map[string]HistoryEntry
}

func newLedger(entries []HistoryEntry) Ledger {
	ledger := Ledger{bySource: make(map[string]HistoryEntry, len(entries))}
	for _, entry := range entries {
		ledger.bySource[foldKey(entry.SourcePath)] = entry
	}
	return ledger
}

// Lookup returns the entry for source, if any.
func (l Ledger) Lookup(source string) (HistoryEntry, bool) {
	entry, ok := l.bySource[foldKey(source)]
	return entry, ok
}

// Succeeded reports whether source was processed successfully.
func (l Ledger) Succeeded(source string) bool {
	entry, ok := l.Lookup(source)
	return ok && entry.Success
}

// SucceededOutput reports whether any successful entry produced output.
func (l Ledger) SucceededOutput(output string) bool {
	for _, entry := range l.bySource {
		if entry.Success && strings.EqualFold(entry.OutputPath, output) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l Ledger) Len() int {
	return len(l.bySource)
}

func foldKey(path string) string {
	return strings.ToLower(path)
}
