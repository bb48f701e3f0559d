package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStopSignalLifecycle(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	stop := store.Stop
	if stop.Requested() {
		t.Fatal("fresh state should not request stop")
	}
	if err := stop.Clear(); err != nil {
		t.Fatalf("clearing absent marker: %v", err)
	}

	at := time.Date(2026, 10, 4, 22, 15, 0, 0, time.UTC)
	if err := stop.Request(at); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !stop.Requested() {
		t.Fatal("expected stop requested")
	}
	got, ok, err := stop.RequestedAt()
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("RequestedAt = %v, %v, %v", got, ok, err)
	}

	// A second handle on the same directory sees the durable marker.
	reopened, err := Open(store.Dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Stop.Requested() {
		t.Fatal("stop marker should survive reopen")
	}
	if err := reopened.Stop.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if stop.Requested() {
		t.Fatal("expected marker removed")
	}
}
