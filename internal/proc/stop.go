package proc

import (
	"context"
	"errors"
	"time"
)

// StopPollInterval is how often WatchStop checks the stop marker.
const StopPollInterval = 500 * time.Millisecond

// ErrStopRequested is the cancellation cause set by WatchStop.
var ErrStopRequested = errors.New("stop requested")

// StopChecker reports whether a stop has been requested.
type StopChecker interface {
	Requested() bool
}

// WatchStop derives a context that is cancelled with ErrStopRequested once
// stop reports a request. The returned function releases the watcher and
// waits for its goroutine to exit.
func WatchStop(parent context.Context, stop StopChecker, interval time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if stop == nil {
		return ctx, func() { cancel(context.Canceled) }
	}
	if interval <= 0 {
		interval = StopPollInterval
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if stop.Requested() {
			cancel(ErrStopRequested)
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stop.Requested() {
					cancel(ErrStopRequested)
					return
				}
			}
		}
	}()
	return ctx, func() {
		cancel(context.Canceled)
		<-done
	}
}

// Interrupted reports whether ctx ended because of a stop request or any
// other cancellation.
func Interrupted(ctx context.Context) bool {
	return ctx.Err() != nil
}

// StopRequested reports whether ctx was cancelled by WatchStop.
func StopRequested(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStopRequested)
}
