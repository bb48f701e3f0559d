package encoding_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"vtranscoder/internal/config"
	"vtranscoder/internal/encoding"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/notifications"
	"vtranscoder/internal/proc"
	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
	"vtranscoder/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	cfg      *config.Config
	store    *state.Store
	notifier *recordingNotifier
	job      jobsource.Job
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.MonitoredDir(cfg)
	source := filepath.Join(root, "show", "episode.mkv")
	testsupport.WriteFile(t, source, 300*1024)
	return &harness{
		cfg:      cfg,
		store:    store,
		notifier: &recordingNotifier{},
		job: jobsource.Job{
			Source: source,
			Root:   root,
			Output: jobsource.OutputPath(cfg, root, source),
		},
	}
}

func (h *harness) orchestrator(exec proc.Executor) *encoding.Orchestrator {
	opts := []encoding.Option{encoding.WithNotifier(h.notifier)}
	if exec != nil {
		opts = append(opts, encoding.WithExecutor(exec))
	}
	return encoding.NewOrchestrator(h.cfg, h.store.History, h.store.Progress, h.store.Stop, logging.NewNop(), opts...)
}

func (h *harness) assertSingleHistory(t *testing.T, success bool) {
	t.Helper()
	entries, err := h.store.History.Entries()
	if err != nil {
		t.Fatalf("history entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(entries))
	}
	if entries[0].SourcePath != h.job.Source || entries[0].Success != success {
		t.Fatalf("unexpected history entry %+v", entries[0])
	}
}

func (h *harness) assertIdle(t *testing.T) {
	t.Helper()
	snapshot, err := h.store.Progress.Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if snapshot.Active || snapshot.Status != state.StatusIdle {
		t.Fatalf("expected idle progress, got %+v", snapshot)
	}
}

func TestRunHandBrakeSuccess(t *testing.T) {
	h := newHarness(t, testsupport.With(func(cfg *config.Config) {
		cfg.Output.DeleteOriginal = true
	}))

	var gotArgs []string
	var sawProgress bool
	exec := proc.ExecutorFunc(func(_ context.Context, binary string, args []string, onStdout, _ func(string)) error {
		if binary != h.cfg.Encoder.HandBrakePath {
			t.Errorf("unexpected binary %s", binary)
		}
		gotArgs = args
		onStdout("Encoding: task 1 of 1, 50.00 % (24.00 fps, avg 24.00 fps, ETA 00h01m00s)")
		snapshot, err := h.store.Progress.Load()
		sawProgress = err == nil && snapshot.Active && snapshot.Encoding && snapshot.OutputFile == h.job.Output &&
			snapshot.Percent == 50 && snapshot.FPS == 24
		return os.WriteFile(args[3], []byte("encoded"), 0o644)
	})

	outcome := h.orchestrator(exec).Run(context.Background(), h.job)
	if !outcome.Success() {
		t.Fatalf("expected success, got %s", outcome)
	}
	if !strings.HasSuffix(h.job.Output, filepath.Join("incoming", "show", "episode.mp4")) {
		t.Fatalf("unexpected output path %s", h.job.Output)
	}
	if gotArgs[0] != "-i" || gotArgs[1] != h.job.Source || gotArgs[2] != "-o" || gotArgs[3] != h.job.Output || !slices.Contains(gotArgs, "Fast 1080p30") {
		t.Fatalf("unexpected args %q", gotArgs)
	}
	if !sawProgress {
		t.Fatal("expected progress snapshot during encode")
	}
	if _, err := os.Stat(h.job.Source); !os.IsNotExist(err) {
		t.Fatalf("original should be deleted, stat err=%v", err)
	}
	h.assertSingleHistory(t, true)
	h.assertIdle(t)
	if !slices.Equal(h.notifier.events, []notifications.Event{notifications.EventJobCompleted}) {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
}

func TestRunHandBrakeProgressFromBothStreams(t *testing.T) {
	h := newHarness(t)

	exec := proc.ExecutorFunc(func(_ context.Context, _ string, args []string, onStdout, onStderr func(string)) error {
		var wg sync.WaitGroup
		for _, emit := range []func(string){onStdout, onStderr} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for pct := 1; pct <= 40; pct++ {
					emit(fmt.Sprintf("Encoding: task 1 of 1, %d.00 %% (24.00 fps, avg 24.00 fps, ETA 00h01m00s)", pct))
				}
			}()
		}
		wg.Wait()
		return os.WriteFile(args[3], []byte("encoded"), 0o644)
	})

	if outcome := h.orchestrator(exec).Run(context.Background(), h.job); !outcome.Success() {
		t.Fatalf("expected success, got %s", outcome)
	}
	h.assertSingleHistory(t, true)
	h.assertIdle(t)
}

func TestRunHandBrakeNonZeroExitFails(t *testing.T) {
	h := newHarness(t, testsupport.WithStubbedBinaries())
	h.cfg.Encoder.HandBrakePath = testsupport.StubBinary(t, filepath.Dir(h.cfg.Encoder.HandBrakePath), "HandBrakeCLI",
		"echo 'Encoding: task 1 of 1, 10.00 %'\nexit 3\n")

	outcome := h.orchestrator(nil).Run(context.Background(), h.job)
	if outcome.Kind != services.OutcomeFailed {
		t.Fatalf("expected failure, got %s", outcome)
	}
	if !strings.Contains(outcome.Err.Error(), "exit code 3") {
		t.Fatalf("expected exit code in error, got %v", outcome.Err)
	}
	if _, err := os.Stat(h.job.Source); err != nil {
		t.Fatalf("source must remain after failure: %v", err)
	}
	h.assertSingleHistory(t, false)
	h.assertIdle(t)
	if !slices.Equal(h.notifier.events, []notifications.Event{notifications.EventJobFailed}) {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
}

func TestRunCancelledByStopSignal(t *testing.T) {
	h := newHarness(t)

	exec := proc.ExecutorFunc(func(ctx context.Context, _ string, args []string, _, _ func(string)) error {
		if err := os.WriteFile(args[3], []byte("partial"), 0o644); err != nil {
			return err
		}
		if err := h.store.Stop.Request(time.Now()); err != nil {
			return err
		}
		<-ctx.Done()
		return context.Cause(ctx)
	})

	outcome := h.orchestrator(exec).Run(context.Background(), h.job)
	if !outcome.Cancelled() {
		t.Fatalf("expected cancelled, got %s", outcome)
	}
	if _, err := os.Stat(h.job.Output); !os.IsNotExist(err) {
		t.Fatalf("partial output should be removed, stat err=%v", err)
	}
	h.assertSingleHistory(t, false)
	h.assertIdle(t)
}

func TestRunSkipsExistingOutput(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteFile(t, h.job.Output, 10)

	exec := proc.ExecutorFunc(func(context.Context, string, []string, func(string), func(string)) error {
		t.Error("encoder must not run when output exists")
		return nil
	})
	outcome := h.orchestrator(exec).Run(context.Background(), h.job)
	if outcome.Kind != services.OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	h.assertSingleHistory(t, false)
}

func TestRunCopyMode(t *testing.T) {
	h := newHarness(t, testsupport.WithCopyMode())
	if filepath.Ext(h.job.Output) != ".mkv" {
		t.Fatalf("copy mode keeps the source extension, got %s", h.job.Output)
	}

	outcome := h.orchestrator(nil).Run(context.Background(), h.job)
	if !outcome.Success() {
		t.Fatalf("expected success, got %s", outcome)
	}
	info, err := os.Stat(h.job.Output)
	if err != nil || info.Size() != 300*1024 {
		t.Fatalf("unexpected copy result: %v %v", info, err)
	}
	h.assertSingleHistory(t, true)
	h.assertIdle(t)
}

func TestRunCopyCancelledRemovesPartial(t *testing.T) {
	h := newHarness(t, testsupport.WithCopyMode())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := h.orchestrator(nil).Run(ctx, h.job)
	if !outcome.Cancelled() {
		t.Fatalf("expected cancelled, got %s", outcome)
	}
	if _, err := os.Stat(h.job.Output); !os.IsNotExist(err) {
		t.Fatalf("partial copy should be removed, stat err=%v", err)
	}
	h.assertSingleHistory(t, false)
}

const ffmpegProbe = `Input #0, matroska,webm, from 'episode.mkv':
  Duration: 00:00:40.00, start: 0.000000, bitrate: 9000 kb/s
  Stream #0:0: Video: mpeg2video (Main), yuv420p, 720x576
  Stream #0:1(eng): Audio: ac3, 48000 Hz, 5.1(side), fltp, 448 kb/s
  Stream #0:2(eng): Subtitle: dvd_subtitle`

func TestRunFFmpegTranscodes(t *testing.T) {
	h := newHarness(t, testsupport.With(func(cfg *config.Config) {
		cfg.Encoder.UseFFmpeg = true
	}))

	var encodeArgs []string
	var percents []float64
	exec := proc.ExecutorFunc(func(_ context.Context, binary string, args []string, _, onStderr func(string)) error {
		if binary != h.cfg.Encoder.FFmpegPath {
			t.Errorf("unexpected binary %s", binary)
		}
		if slices.Contains(args, "-hide_banner") {
			for _, line := range strings.Split(ffmpegProbe, "\n") {
				onStderr(line)
			}
			return nil
		}
		encodeArgs = args
		onStderr("frame=1 fps=25 time=00:00:20.00 bitrate=1kbits/s")
		snapshot, _ := h.store.Progress.Load()
		percents = append(percents, snapshot.Percent)
		return os.WriteFile(args[len(args)-1], []byte("encoded"), 0o644)
	})

	outcome := h.orchestrator(exec).Run(context.Background(), h.job)
	if !outcome.Success() {
		t.Fatalf("expected success, got %s", outcome)
	}
	if !slices.Contains(encodeArgs, "libx265") || !slices.Contains(encodeArgs, "copy") {
		t.Fatalf("expected video transcode with audio copy, got %q", encodeArgs)
	}
	if !slices.Equal(percents, []float64{50}) {
		t.Fatalf("unexpected progress %v", percents)
	}
	h.assertSingleHistory(t, true)
}
