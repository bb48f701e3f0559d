package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWaitDelay bounds how long a killed process may keep its pipes open.
const DefaultWaitDelay = 5 * time.Second

const maxLineBytes = 1 << 20

// Executor abstracts command execution for testability. Each output line is
// delivered to the matching callback; nil callbacks discard output.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error

// Run implements Executor.
func (f ExecutorFunc) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	return f(ctx, binary, args, onStdout, onStderr)
}

// CommandExecutor runs real processes.
type CommandExecutor struct {
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

// Run starts binary, streams its output, and waits for it to exit. When ctx
// ends the process is killed and Run returns an error wrapping ctx's cause.
func (e CommandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	delay := e.WaitDelay
	if delay <= 0 {
		delay = DefaultWaitDelay
	}

	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.WaitDelay = delay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	readersDone := make(chan struct{})
	stopClosing := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = stdout.Close()
			_ = stderr.Close()
		case <-readersDone:
		}
	})
	defer stopClosing()

	var readers errgroup.Group
	readers.Go(func() error { return scanLines(stdout, onStdout) })
	readers.Go(func() error { return scanLines(stderr, onStderr) })
	scanErr := readers.Wait()
	close(readersDone)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted: %w", binary, context.Cause(ctx))
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", binary, waitErr)
	}
	if scanErr != nil {
		return fmt.Errorf("read %s output: %w", binary, scanErr)
	}
	return nil
}

func scanLines(r io.Reader, forward func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	return scanner.Err()
}

// ScanLines is a bufio.SplitFunc that treats "\n", "\r\n" and a bare "\r" as
// line terminators. Encoders redraw their progress line with "\r".
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell "\r" from "\r\n".
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ExitCode extracts the process exit status from an error returned by Run.
// It returns 0 for nil and -1 when err carries no exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
