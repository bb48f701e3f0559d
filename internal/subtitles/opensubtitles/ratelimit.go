package opensubtitles

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Pacing for OpenSubtitles API calls.
const (
	MinInterval       = time.Second
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxRetries = 1

	MaxRateRetries = 4
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 60 * time.Second
)

// NewLimiter returns a limiter allowing one call per MinInterval with no
// burst beyond a single call.
func NewLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(MinInterval), 1)
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("opensubtitles: %s failed (%s): %s", e.Op, e.Status, e.Body)
}

func newStatusError(op string, resp *http.Response, body string) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// IsRetriable reports whether err is a transient condition worth retrying:
// rate limiting, gateway errors, timeouts and dropped connections.
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// backoff returns the wait before retry attempt (1-based): doubling from
// initial, capped at MaxBackoff, and never shorter than a Retry-After hint.
func backoff(initial time.Duration, attempt int, err error) time.Duration {
	wait := initial << (attempt - 1)
	if wait <= 0 || wait > MaxBackoff {
		wait = MaxBackoff
	}
	var status *StatusError
	if errors.As(err, &status) && status.RetryAfter > wait {
		wait = min(status.RetryAfter, MaxBackoff)
	}
	return wait
}
