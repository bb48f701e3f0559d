package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"vtranscoder/internal/config"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
	"vtranscoder/internal/subtitles"
	"vtranscoder/internal/testsupport"
	"vtranscoder/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	cfg        *config.Config
	configPath string
	store      *state.Store
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	return &fixture{
		cfg:        cfg,
		configPath: testsupport.WriteConfig(t, cfg),
		store:      testsupport.MustOpenStore(t, cfg),
	}
}

func (f *fixture) loop(opts ...workflow.Option) *workflow.Loop {
	opts = append([]workflow.Option{workflow.WithStopDelay(0)}, opts...)
	return workflow.NewLoop(f.configPath, f.store, logging.NewNop(), opts...)
}

// runAsync starts l and returns a channel with its result.
func runAsync(ctx context.Context, l *workflow.Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func awaitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("loop did not return")
		return nil
	}
}

func TestRunReturnsErrStopRequestedAndClearsSignal(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}

	err := f.loop().Run(context.Background())
	if !errors.Is(err, workflow.ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested, got %v", err)
	}
	if f.store.Stop.Requested() {
		t.Fatal("stop signal should be cleared")
	}
}

func TestRunInvalidSettingsAreFatal(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.configPath, []byte("[schedule]\ncheck_interval_minutes = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loop := f.loop()
	err := loop.Run(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if status := loop.Status(); status.State != workflow.StateFatal || status.LastError == "" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRunDrainsPendingFilesThenStops(t *testing.T) {
	f := newFixture(t, testsupport.WithCopyMode())
	root := testsupport.MonitoredDir(f.cfg)
	testsupport.WriteFile(t, filepath.Join(root, "a.mkv"), 1024)
	testsupport.WriteFile(t, filepath.Join(root, "nested", "b.mp4"), 2048)
	testsupport.WriteFile(t, filepath.Join(root, "notes.txt"), 10)

	done := runAsync(context.Background(), f.loop())
	waitFor(t, "two history entries", func() bool {
		entries, err := f.store.History.Entries()
		return err == nil && len(entries) == 2
	})
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if err := awaitResult(t, done); !errors.Is(err, workflow.ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested, got %v", err)
	}

	for _, rel := range []string{filepath.Join("incoming", "a.mkv"), filepath.Join("incoming", "nested", "b.mp4")} {
		if _, err := os.Stat(filepath.Join(f.cfg.Paths.OutputDir, rel)); err != nil {
			t.Fatalf("expected output %s: %v", rel, err)
		}
	}
	entries, _ := f.store.History.Entries()
	for _, entry := range entries {
		if !entry.Success {
			t.Fatalf("expected successful entry, got %+v", entry)
		}
	}
}

func TestRunOutsideWindowWaits(t *testing.T) {
	f := newFixture(t, testsupport.With(func(cfg *config.Config) {
		cfg.Schedule.Enabled = true
		cfg.Schedule.Start = "01:00"
		cfg.Schedule.End = "02:00"
	}))
	testsupport.WriteFile(t, filepath.Join(testsupport.MonitoredDir(f.cfg), "a.mkv"), 1024)
	noon := time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local)

	ctx, cancel := context.WithCancel(context.Background())
	loop := f.loop(workflow.WithClock(func() time.Time { return noon }))
	done := runAsync(ctx, loop)
	waitFor(t, "out of window state", func() bool {
		return loop.Status().State == workflow.StateOutOfWindow
	})
	cancel()
	if err := awaitResult(t, done); err != nil {
		t.Fatalf("host shutdown should return nil, got %v", err)
	}
	if entries, _ := f.store.History.Entries(); len(entries) != 0 {
		t.Fatalf("no job may run outside the window, got %v", entries)
	}
}

func TestRunWakesOnFileChange(t *testing.T) {
	f := newFixture(t, testsupport.WithCopyMode())
	wake := make(chan string, 1)
	done := runAsync(context.Background(), f.loop(workflow.WithWake(wake)))

	time.Sleep(200 * time.Millisecond)
	testsupport.WriteFile(t, filepath.Join(testsupport.MonitoredDir(f.cfg), "late.mkv"), 512)
	wake <- f.configPath

	waitFor(t, "late file processed", func() bool {
		entries, err := f.store.History.Entries()
		return err == nil && len(entries) == 1
	})
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if err := awaitResult(t, done); !errors.Is(err, workflow.ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested, got %v", err)
	}
}

func TestRunRecoversFromPanicAfterCooldown(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, filepath.Join(testsupport.MonitoredDir(f.cfg), "a.mkv"), 1024)
	before := testutil.ToFloat64(metrics.LoopErrorsTotal)

	var calls atomic.Int32
	exec := proc.ExecutorFunc(func(_ context.Context, _ string, args []string, _, _ func(string)) error {
		if calls.Add(1) == 1 {
			panic("encoder exploded")
		}
		return os.WriteFile(args[3], []byte("encoded"), 0o644)
	})

	loop := f.loop(workflow.WithExecutor(exec), workflow.WithCooldown(10*time.Millisecond))
	done := runAsync(context.Background(), loop)
	waitFor(t, "retry succeeds", func() bool {
		entries, err := f.store.History.Entries()
		return err == nil && len(entries) == 1 && entries[0].Success
	})
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if err := awaitResult(t, done); !errors.Is(err, workflow.ErrStopRequested) {
		t.Fatalf("expected ErrStopRequested, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.LoopErrorsTotal) - before; got != 1 {
		t.Fatalf("expected one loop error, got %v", got)
	}
	if status := loop.Status(); !strings.Contains(status.LastError, "encoder exploded") {
		t.Fatalf("expected panic in last error, got %q", status.LastError)
	}
}

func TestRunRemovesOutputOfInterruptedJob(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.cfg.Paths.OutputDir, "half.mp4")
	testsupport.WriteFile(t, output, 100)
	if err := f.store.Progress.Save(state.ProgressSnapshot{Active: true, Encoding: true, CurrentFile: "/in/half.mkv", OutputFile: output, Percent: 40}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}

	_ = f.loop().Run(context.Background())
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("interrupted output should be removed, stat err=%v", err)
	}
	snapshot, err := f.store.Progress.Load()
	if err != nil || snapshot.Active {
		t.Fatalf("progress should be idle: %+v %v", snapshot, err)
	}
}

func TestRunKeepsSucceededOutputOnRecovery(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.cfg.Paths.OutputDir, "done.mp4")
	testsupport.WriteFile(t, output, 100)
	if err := f.store.History.Record(state.HistoryEntry{SourcePath: "/in/done.mkv", OutputPath: output, Timestamp: time.Now(), Success: true}); err != nil {
		t.Fatalf("record history: %v", err)
	}
	if err := f.store.Progress.Save(state.ProgressSnapshot{Active: true, Encoding: true, CurrentFile: "/in/done.mkv", OutputFile: output}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}

	_ = f.loop().Run(context.Background())
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("finished output must be kept: %v", err)
	}
}

func TestRunKeepsOutputWhenCrashPrecededEncode(t *testing.T) {
	f := newFixture(t, testsupport.With(func(cfg *config.Config) {
		cfg.Subtitles.CopyExternal = true
	}))
	root := testsupport.MonitoredDir(f.cfg)
	source := filepath.Join(root, "movie.mkv")
	testsupport.WriteFile(t, source, 1024)
	output := filepath.Join(f.cfg.Paths.OutputDir, "incoming", "movie.mp4")
	testsupport.WriteFile(t, output, 500*1024)

	resolver := subtitles.NewResolver(f.cfg, f.store.Progress, f.store.Stop, logging.NewNop())
	if outcome := resolver.Resolve(context.Background(), jobsource.Job{Source: source, Root: root, Output: output}); !outcome.Success() {
		t.Fatalf("resolve: %s", outcome)
	}

	// The process dies here, before the encoder starts.
	snapshot, err := f.store.Progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if !snapshot.Active || snapshot.Encoding || snapshot.OutputFile != "" {
		t.Fatalf("subtitle stage must not claim the output: %+v", snapshot)
	}
	if err := f.store.Stop.Request(time.Now()); err != nil {
		t.Fatalf("request stop: %v", err)
	}

	_ = f.loop().Run(context.Background())
	info, err := os.Stat(output)
	if err != nil || info.Size() != 500*1024 {
		t.Fatalf("existing output must survive recovery: %v", err)
	}
	if snapshot, _ := f.store.Progress.Load(); snapshot.Active {
		t.Fatalf("progress should be idle after recovery: %+v", snapshot)
	}
}
