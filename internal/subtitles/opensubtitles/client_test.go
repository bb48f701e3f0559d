package opensubtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(Config{
		APIKey:     "abc",
		AppName:    "vtranscoder",
		BaseURL:    serverURL,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
		RetryDelay: time.Millisecond,
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New client failed: %v", err)
	}
	return client
}

func TestNewRequiresKeyAndAppName(t *testing.T) {
	if _, err := New(Config{AppName: "x"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without app name")
	}
}

func TestSearchBuildsQueryAndParsesResponse(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		if r.URL.Path != "/subtitles" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{
				{
					"id": "1",
					"attributes": map[string]any{
						"language":        "sl",
						"download_count":  120,
						"ratings":         7.5,
						"from_trusted":    true,
						"feature_details": map[string]any{"movie_name": "Example Movie"},
						"files":           []map[string]any{{"file_id": 555, "file_name": "example.srt"}},
					},
				},
				{
					"id":         "2",
					"attributes": map[string]any{"download_count": 3},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	subs, err := client.Search(context.Background(), SearchRequest{MovieHash: "8e245d9679d31e12", MovieByteSize: 12909756, Languages: []string{"sl"}})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	query := captured.URL.Query()
	if query.Get("moviehash") != "8e245d9679d31e12" || query.Get("moviebytesize") != "12909756" || query.Get("languages") != "sl" {
		t.Fatalf("unexpected query: %s", captured.URL.RawQuery)
	}
	if captured.Header.Get("Api-Key") != "abc" {
		t.Fatalf("missing api key header")
	}
	if ua := captured.Header.Get("User-Agent"); ua != "vtranscoder v1.0" {
		t.Fatalf("unexpected user agent %q", ua)
	}
	if captured.Header.Get("Authorization") != "" {
		t.Fatal("anonymous search should not send authorization")
	}
	if len(subs) != 1 {
		t.Fatalf("expected entries without language to be dropped, got %d", len(subs))
	}
	got := subs[0]
	if got.FileID != 555 || got.FileName != "example.srt" || got.MovieName != "Example Movie" || !got.Trusted || got.Rating != 7.5 || got.Downloads != 120 {
		t.Fatalf("unexpected subtitle: %+v", got)
	}
}

func TestLoginSetsBearerAndLogoutClears(t *testing.T) {
	var logoutAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["username"] != "user" || body["password"] != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"token":"tok"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/logout":
			logoutAuth.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.Login(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !client.LoggedIn() {
		t.Fatal("expected session after login")
	}
	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got, _ := logoutAuth.Load().(string); got != "Bearer tok" {
		t.Fatalf("logout authorization = %q", got)
	}
	if client.LoggedIn() {
		t.Fatal("expected token cleared after logout")
	}
}

func TestLoginSkippedWithoutCredentials(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	if err := client.Login(context.Background(), "", ""); err != nil {
		t.Fatalf("Login without credentials: %v", err)
	}
	if client.LoggedIn() {
		t.Fatal("expected anonymous client")
	}
	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout without session: %v", err)
	}
}

func TestDownloadRetriesHTMLThenSucceeds(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			_, _ = io.WriteString(w, `{"link":"/files/1.srt"}`)
		case "/files/1.srt":
			if fetches.Add(1) == 1 {
				_, _ = io.WriteString(w, "<!DOCTYPE html><html><body>busy</body></html>")
				return
			}
			_, _ = io.WriteString(w, "1\n00:00:01,000 --> 00:00:02,000\nHello\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	data, err := newTestClient(t, server.URL).Download(context.Background(), 1)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !strings.Contains(string(data), "Hello") {
		t.Fatalf("unexpected payload %q", data)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetches.Load())
	}
}

func TestDownloadReportsPersistentHTML(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			_, _ = io.WriteString(w, `{"link":"/files/1.srt"}`)
		default:
			fetches.Add(1)
			_, _ = io.WriteString(w, "<html><head><title>Error</title></head></html>")
		}
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Download(context.Background(), 1)
	if !errors.Is(err, ErrHTMLPayload) {
		t.Fatalf("expected ErrHTMLPayload, got %v", err)
	}
	if fetches.Load() != int32(DefaultMaxRetries+1) {
		t.Fatalf("expected %d fetches, got %d", DefaultMaxRetries+1, fetches.Load())
	}
}

func TestDownloadNegotiationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = io.WriteString(w, `{"message":"quota exceeded"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Download(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected negotiation error, got %v", err)
	}
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"message":"slow down"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"7","attributes":{"language":"en","files":[{"file_id":9}]}}]}`)
	}))
	defer server.Close()

	results, err := newTestClient(t, server.URL).Search(context.Background(), SearchRequest{MovieHash: "abc", Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].FileID != 9 {
		t.Fatalf("unexpected results %+v", results)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSearchGivesUpAfterMaxRateRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Search(context.Background(), SearchRequest{MovieHash: "abc"})
	var status *StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}
	if calls.Load() != int32(MaxRateRetries+1) {
		t.Fatalf("expected %d calls, got %d", MaxRateRetries+1, calls.Load())
	}
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).Search(context.Background(), SearchRequest{MovieHash: "abc"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"gateway timeout", &StatusError{StatusCode: http.StatusGatewayTimeout}, true},
		{"unauthorized", &StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("decode failed"), false},
	}
	for _, tt := range tests {
		if got := IsRetriable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetriable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBackoffDoublesAndHonoursRetryAfter(t *testing.T) {
	plain := &StatusError{StatusCode: http.StatusTooManyRequests}
	if got := backoff(InitialBackoff, 1, plain); got != InitialBackoff {
		t.Fatalf("first backoff = %v", got)
	}
	if got := backoff(InitialBackoff, 3, plain); got != 4*InitialBackoff {
		t.Fatalf("third backoff = %v", got)
	}
	if got := backoff(InitialBackoff, 10, plain); got != MaxBackoff {
		t.Fatalf("backoff should cap at %v, got %v", MaxBackoff, got)
	}
	hinted := &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}
	if got := backoff(InitialBackoff, 1, hinted); got != 30*time.Second {
		t.Fatalf("Retry-After should win, got %v", got)
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{"<!doctype html><p>", true},
		{"  <HTML lang=en>...", true},
		{"xxxxxxxxx<head>xx", true},
		{"<html>", false},
		{"1\n00:00:01,000 --> 00:00:02,000\n", false},
	}
	for _, tt := range tests {
		if got := IsHTML([]byte(tt.data)); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}
