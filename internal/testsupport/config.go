package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vtranscoder/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The first monitored directory exists; output, state and log directories
// are left for the code under test to create. The encoder binaries point at
// paths that do not exist unless WithStubbedBinaries is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	incoming := filepath.Join(base, "incoming")
	if err := os.MkdirAll(incoming, 0o755); err != nil {
		t.Fatalf("mkdir incoming: %v", err)
	}

	cfgVal := config.Default()
	cfgVal.Paths.MonitoredDirs = []string{incoming}
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Encoder.HandBrakePath = filepath.Join(base, "bin", "HandBrakeCLI")
	cfgVal.Encoder.FFmpegPath = filepath.Join(base, "bin", "ffmpeg")
	cfgVal.Subtitles.ConvertToSRTIfMissing = false
	cfgVal.Subtitles.CopyExternal = false
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStubbedBinaries writes stub executables for HandBrakeCLI and ffmpeg
// into the config's bin directory so validation passes.
func WithStubbedBinaries() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoder.HandBrakePath = StubBinary(b.t, filepath.Join(b.baseDir, "bin"), "HandBrakeCLI", "exit 0\n")
		b.cfg.Encoder.FFmpegPath = StubBinary(b.t, filepath.Join(b.baseDir, "bin"), "ffmpeg", "exit 0\n")
	}
}

// WithCopyMode disables transcoding so jobs are plain copies.
func WithCopyMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoder.Enabled = false
	}
}

// With applies an arbitrary mutation to the config.
func With(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// StubBinary writes an executable shell script named name into dir and
// returns its path. body is appended after the shebang line.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// WriteConfig saves cfg as a TOML file in the config's base directory and
// returns the path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// MonitoredDir returns the first monitored directory.
func MonitoredDir(cfg *config.Config) string {
	return cfg.Paths.MonitoredDirs[0]
}
