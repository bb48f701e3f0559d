package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vtranscoder/internal/logging"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("log"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCleanupOldLogsByAge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "vtranscoder-old.log")
	fresh := filepath.Join(dir, "vtranscoder-new.log")
	other := filepath.Join(dir, "notes.txt")
	writeAged(t, old, 10*24*time.Hour)
	writeAged(t, fresh, time.Hour)
	writeAged(t, other, 10*24*time.Hour)

	logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{Dir: dir, Pattern: "vtranscoder-*.log"})

	if exists(old) {
		t.Fatal("expected old log to be pruned")
	}
	if !exists(fresh) || !exists(other) {
		t.Fatal("expected fresh log and non-matching file to remain")
	}
}

func TestCleanupOldLogsKeepLimit(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 4; i++ {
		path := filepath.Join(dir, "vtranscoder-"+string(rune('a'+i))+".log")
		writeAged(t, path, time.Duration(i+1)*time.Hour)
		paths = append(paths, path)
	}
	current := paths[3]

	logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "vtranscoder-*.log",
		Keep:    2,
		Exclude: []string{current},
	})

	if !exists(paths[0]) || !exists(paths[1]) {
		t.Fatal("expected the two newest logs to remain")
	}
	if exists(paths[2]) {
		t.Fatal("expected third newest log to be pruned")
	}
	if !exists(current) {
		t.Fatal("excluded log must never be pruned")
	}
}
