package opensubtitles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const hashChunkSize = 64 * 1024

// ErrFileTooSmall is returned by MovieHash for files under 128 KiB.
var ErrFileTooSmall = errors.New("opensubtitles: file too small to hash")

// MovieHash computes the OpenSubtitles hash of the file at path: the file
// size plus the little-endian uint64 words of the first and last 64 KiB,
// formatted as 16 hex digits. It also returns the file size.
func MovieHash(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opensubtitles: open for hash: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("opensubtitles: stat for hash: %w", err)
	}
	size := info.Size()
	if size < 2*hashChunkSize {
		return "", size, ErrFileTooSmall
	}

	hash := uint64(size)
	buf := make([]byte, hashChunkSize)
	for _, offset := range []int64{0, size - hashChunkSize} {
		if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return "", size, fmt.Errorf("opensubtitles: read for hash: %w", err)
		}
		for i := 0; i < hashChunkSize; i += 8 {
			hash += binary.LittleEndian.Uint64(buf[i : i+8])
		}
	}
	return fmt.Sprintf("%016x", hash), size, nil
}
