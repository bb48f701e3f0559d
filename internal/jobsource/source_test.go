package jobsource_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vtranscoder/internal/config"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/state"
	"vtranscoder/internal/testsupport"
)

func sources(jobs []jobsource.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Source)
	}
	return out
}

func TestEnumerateSkipsSuccessesAndRetriesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MonitoredDir(cfg)
	done := filepath.Join(root, "a.mkv")
	failed := filepath.Join(root, "b.MP4")
	fresh := filepath.Join(root, "season", "c.avi")
	for _, path := range []string{done, failed, fresh, filepath.Join(root, "notes.txt")} {
		testsupport.WriteFile(t, path, 16)
	}

	store := testsupport.MustOpenStore(t, cfg)
	if err := store.History.Record(state.HistoryEntry{SourcePath: done, Success: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.History.Record(state.HistoryEntry{SourcePath: failed, Success: false}); err != nil {
		t.Fatalf("record: %v", err)
	}

	jobs, err := jobsource.New(store.History, logging.NewNop()).Pending(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if diff := cmp.Diff([]string{failed, fresh}, sources(jobs)); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateSkipsMissingDirectoriesAndOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MonitoredDir(cfg)
	cfg.Paths.MonitoredDirs = append([]string{filepath.Join(root, "absent")}, cfg.Paths.MonitoredDirs...)
	cfg.Paths.OutputDir = filepath.Join(root, "converted")
	testsupport.WriteFile(t, filepath.Join(root, "movie.mkv"), 16)
	testsupport.WriteFile(t, filepath.Join(root, "converted", "incoming", "movie.mp4"), 16)

	store := testsupport.MustOpenStore(t, cfg)
	jobs, err := jobsource.New(store.History, logging.NewNop()).Pending(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "movie.mkv")}, sources(jobs)); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateStopsWhenYieldReturnsFalse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.MonitoredDir(cfg)
	for _, name := range []string{"1.mkv", "2.mkv", "3.mkv"} {
		testsupport.WriteFile(t, filepath.Join(root, name), 16)
	}
	store := testsupport.MustOpenStore(t, cfg)

	var seen int
	err := jobsource.New(store.History, logging.NewNop()).Enumerate(context.Background(), cfg, func(jobsource.Job) bool {
		seen++
		return seen < 2
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if seen != 2 {
		t.Fatalf("yield called %d times, want 2", seen)
	}
}

func TestEnumerateHonoursCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(testsupport.MonitoredDir(cfg), "1.mkv"), 16)
	store := testsupport.MustOpenStore(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := jobsource.New(store.History, logging.NewNop()).Enumerate(ctx, cfg, func(jobsource.Job) bool {
		t.Fatal("yield should not be called")
		return false
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name     string
		preserve bool
		encode   bool
		want     string
	}{
		{name: "preserve and encode", preserve: true, encode: true, want: "/out/tv/show/s01/e01.mp4"},
		{name: "flat and encode", preserve: false, encode: true, want: "/out/e01.mp4"},
		{name: "preserve copy keeps extension", preserve: true, encode: false, want: "/out/tv/show/s01/e01.mkv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.OutputDir = "/out"
			cfg.Output.PreserveFolderStructure = tt.preserve
			cfg.Encoder.Enabled = tt.encode
			got := jobsource.OutputPath(&cfg, "/media/tv", "/media/tv/show/s01/e01.mkv")
			if got != tt.want {
				t.Fatalf("OutputPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasVideoExtension(t *testing.T) {
	cfg := config.Default()
	cfg.Output.FileExtensions = []string{".mkv", ".mp4"}
	if !jobsource.HasVideoExtension(&cfg, "/x/Movie.MKV") {
		t.Fatal("expected case-insensitive match")
	}
	if jobsource.HasVideoExtension(&cfg, "/x/readme") || jobsource.HasVideoExtension(&cfg, "/x/a.srt") {
		t.Fatal("unexpected match")
	}
}
