package daemonctl

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vtranscoder/internal/config"
	"vtranscoder/internal/state"
	"vtranscoder/internal/testsupport"
)

func holdLock(t *testing.T, cfg *config.Config, pid int) *flock.Flock {
	t.Helper()
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return lock
}

func TestProcessInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	running, pid, err := ProcessInfo(cfg)
	if err != nil || running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d err=%v", running, pid, err)
	}

	holdLock(t, cfg, 4242)
	running, pid, err = ProcessInfo(cfg)
	if err != nil || !running || pid != 4242 {
		t.Fatalf("expected running pid 4242, got running=%v pid=%d err=%v", running, pid, err)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := StopAndTerminate(cfg, store.Stop, time.Second, false)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if store.Stop.Requested() {
		t.Fatal("no marker should be written when nothing runs")
	}
}

func TestStopAndTerminateWaitsForLockRelease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	lock := holdLock(t, cfg, 4242)

	released := make(chan struct{})
	go func() {
		defer close(released)
		for !store.Stop.Requested() {
			time.Sleep(10 * time.Millisecond)
		}
		_ = lock.Unlock()
	}()

	result, err := StopAndTerminate(cfg, store.Stop, 5*time.Second, false)
	<-released
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.Requested || !result.Stopped || result.ForcedKill || result.PID != 4242 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestStopAndTerminateLeavesBusyDaemonWithoutForce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	holdLock(t, cfg, 4242)

	result, err := StopAndTerminate(cfg, store.Stop, 300*time.Millisecond, false)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.Requested || result.Stopped {
		t.Fatalf("expected a pending stop, got %+v", result)
	}
	if !store.Stop.Requested() {
		t.Fatal("stop marker should remain for the daemon to honour")
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ForceKillProcess(cfg.PIDPath(), 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestBuildStatusSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now()
	for _, entry := range []state.HistoryEntry{
		{SourcePath: "/in/a.mkv", OutputPath: "/out/a.mp4", Timestamp: now, Success: true},
		{SourcePath: "/in/b.mkv", OutputPath: "/out/b.mp4", Timestamp: now, Success: true},
		{SourcePath: "/in/c.mkv", Timestamp: now},
	} {
		if err := store.History.Record(entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := store.Progress.Save(state.ProgressSnapshot{Active: true, CurrentFile: "/in/d.mkv", Percent: 12.5, Status: "Encoding 12.5%"}); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	snap, err := BuildStatusSnapshot(context.Background(), cfg, store)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Running || snap.Processed != 2 || snap.Failed != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.Progress.Active || snap.Progress.CurrentFile != "/in/d.mkv" {
		t.Fatalf("unexpected progress %+v", snap.Progress)
	}
	if len(snap.Dependencies) != 2 || !snap.Dependencies[0].Available {
		t.Fatalf("expected stubbed HandBrake to resolve: %+v", snap.Dependencies)
	}
}
