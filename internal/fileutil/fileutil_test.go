package fileutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("previous content that is longer"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyWithProgressReportsWholePercents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := bytes.Repeat([]byte{0x5a}, 4*CopyBufferSize+123)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var percents []int
	if err := CopyWithProgress(context.Background(), src, dst, func(p int) { percents = append(percents, p) }); err != nil {
		t.Fatalf("CopyWithProgress: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("copied content mismatch")
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("expected final 100%%, got %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Fatalf("percents not strictly increasing: %v", percents)
		}
	}
}

func TestCopyWithProgressCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, bytes.Repeat([]byte{1}, 3*CopyBufferSize), 0o644); err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop requested")
	ctx, cancel := context.WithCancelCause(context.Background())
	err := CopyWithProgress(ctx, src, dst, func(p int) {
		if p > 0 {
			cancel(stop)
		}
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected cancellation cause, got %v", err)
	}
	info, statErr := os.Stat(dst)
	if statErr != nil {
		t.Fatalf("partial destination should remain for caller cleanup: %v", statErr)
	}
	if info.Size() >= 3*CopyBufferSize {
		t.Fatalf("copy continued after cancellation: %d bytes", info.Size())
	}
}
