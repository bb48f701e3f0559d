package fileutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// CopyBufferSize is the chunk size used by CopyWithProgress.
const CopyBufferSize = 80 * 1024

// CopyFile streams src to dst with default permissions (0o644), truncating
// any existing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// CopyWithProgress streams src to dst in CopyBufferSize chunks. ctx is
// checked before every write; on cancellation the partial dst is left for
// the caller to remove and the returned error wraps ctx's cause. onPercent,
// when set, receives each new whole percentage.
func CopyWithProgress(ctx context.Context, src, dst string, onPercent func(int)) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	total := info.Size()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	buf := make([]byte, CopyBufferSize)
	var copied int64
	lastPercent := -1
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				return fmt.Errorf("copy interrupted: %w", context.Cause(ctx))
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("write destination: %w", err)
			}
			copied += int64(n)
			if onPercent != nil && total > 0 {
				if percent := int(copied * 100 / total); percent > lastPercent {
					lastPercent = percent
					onPercent(percent)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read source: %w", readErr)
		}
	}
	if onPercent != nil && lastPercent < 100 {
		onPercent(100)
	}
	return out.Close()
}
