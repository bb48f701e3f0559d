package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultHTTPTimeout = 30 * time.Second
	errorBodyLimit     = 4096
)

// ErrHTMLPayload marks a downloaded payload that is an HTML page rather than
// a subtitle file.
var ErrHTMLPayload = errors.New("opensubtitles: payload is an HTML page")

// Config describes the OpenSubtitles client configuration.
type Config struct {
	APIKey     string
	AppName    string
	BaseURL    string
	HTTPClient *http.Client
	// Limiter paces API calls; nil uses NewLimiter.
	Limiter *rate.Limiter
	// RetryDelay and MaxRetries control the payload fetch retry.
	RetryDelay time.Duration
	MaxRetries int
	// Backoff is the first wait after a rate-limited or transient API
	// failure; zero uses InitialBackoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Client wraps the OpenSubtitles REST API.
type Client struct {
	apiKey     string
	userAgent  string
	baseURL    *url.URL
	http       *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("opensubtitles: api key is required")
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		return nil, errors.New("opensubtitles: app name is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	initialBackoff := cfg.Backoff
	if initialBackoff <= 0 {
		initialBackoff = InitialBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		apiKey:     apiKey,
		userAgent:  appName + " v1.0",
		baseURL:    baseURL,
		http:       client,
		limiter:    limiter,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		backoff:    initialBackoff,
		logger:     logger,
	}, nil
}

// SearchRequest describes a hash search.
type SearchRequest struct {
	MovieHash     string
	MovieByteSize int64
	Languages     []string
}

// Subtitle represents a subtitle candidate returned by OpenSubtitles.
type Subtitle struct {
	ID        string
	FileID    int64
	FileName  string
	MovieName string
	Language  string
	Downloads int
	Rating    float64
	Trusted   bool
}

// Login opens a user session. Empty credentials skip the login and leave
// the client in anonymous mode.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		c.logger.Debug("opensubtitles credentials not set; using anonymous access")
		return nil
	}
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("opensubtitles: encode login request: %w", err)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL.JoinPath("login"), payload, &resp, "login"); err != nil {
		return err
	}
	if resp.Token == "" {
		return errors.New("opensubtitles: login response missing token")
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	c.logger.Info("opensubtitles login succeeded")
	return nil
}

// LoggedIn reports whether the client holds a session token.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Logout ends the session. The token is cleared even when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	if !c.LoggedIn() {
		return nil
	}
	err := c.doJSON(ctx, http.MethodDelete, c.baseURL.JoinPath("logout"), nil, nil, "logout")
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return err
}

// Search queries subtitles matching the movie hash.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Subtitle, error) {
	if c == nil {
		return nil, errors.New("opensubtitles: client is nil")
	}
	endpoint := c.baseURL.JoinPath("subtitles")
	params := url.Values{}
	if req.MovieHash != "" {
		params.Set("moviehash", req.MovieHash)
	}
	if req.MovieByteSize > 0 {
		params.Set("moviebytesize", strconv.FormatInt(req.MovieByteSize, 10))
	}
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	endpoint.RawQuery = params.Encode()

	var payload searchResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload, "search"); err != nil {
		return nil, err
	}

	subtitles := make([]Subtitle, 0, len(payload.Data))
	for _, entry := range payload.Data {
		attrs := entry.Attributes
		if attrs.Language == "" {
			continue
		}
		subtitle := Subtitle{
			ID:        entry.ID,
			MovieName: attrs.FeatureDetails.MovieName,
			Language:  attrs.Language,
			Downloads: attrs.DownloadCount,
			Rating:    attrs.Ratings,
			Trusted:   attrs.FromTrusted,
		}
		if len(attrs.Files) > 0 {
			subtitle.FileID = attrs.Files[0].FileID
			subtitle.FileName = attrs.Files[0].FileName
		}
		subtitles = append(subtitles, subtitle)
	}
	return subtitles, nil
}

// Download negotiates a download link for fileID and fetches the payload.
// The fetch is retried after RetryDelay when it fails or returns HTML.
func (c *Client) Download(ctx context.Context, fileID int64) ([]byte, error) {
	if c == nil {
		return nil, errors.New("opensubtitles: client is nil")
	}
	if fileID <= 0 {
		return nil, errors.New("opensubtitles: invalid file id")
	}
	body, err := json.Marshal(map[string]any{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: encode download request: %w", err)
	}
	endpoint := c.baseURL.JoinPath("download")
	var info downloadResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &info, "download"); err != nil {
		return nil, err
	}
	if info.Link == "" {
		return nil, errors.New("opensubtitles: download response missing link")
	}
	link, err := endpoint.Parse(info.Link)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse download url: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying subtitle download",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", c.retryDelay),
				slog.String("reason", lastErr.Error()),
			)
			if err := SleepWithContext(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}
		data, err := c.fetch(ctx, link)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("opensubtitles: download failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) fetch(ctx context.Context, link *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: build link request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: fetch subtitle payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("opensubtitles: subtitle download failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: read subtitle data: %w", err)
	}
	if IsHTML(data) {
		return nil, ErrHTMLPayload
	}
	return data, nil
}

// IsHTML reports whether data looks like an HTML document: at least 15
// bytes whose first 100 contain a doctype, html or head tag.
func IsHTML(data []byte) bool {
	if len(data) < 15 {
		return false
	}
	head := bytes.ToLower(data[:min(100, len(data))])
	return bytes.Contains(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<head"))
}

// doJSON performs an API call, retrying rate-limited and transient failures
// up to MaxRateRetries times with exponential backoff.
func (c *Client) doJSON(ctx context.Context, method string, endpoint *url.URL, body []byte, out any, op string) error {
	for attempt := 0; ; attempt++ {
		err := c.doJSONOnce(ctx, method, endpoint, body, out, op)
		if err == nil || !IsRetriable(err) || attempt >= MaxRateRetries || ctx.Err() != nil {
			return err
		}
		wait := backoff(c.backoff, attempt+1, err)
		c.logger.Warn("opensubtitles rate limited, retrying",
			slog.String("event_type", "opensubtitles_rate_limited"),
			slog.String("operation", op),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", MaxRateRetries),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if err := SleepWithContext(ctx, wait); err != nil {
			return fmt.Errorf("opensubtitles: %s: %w", op, err)
		}
	}
}

func (c *Client) doJSONOnce(ctx context.Context, method string, endpoint *url.URL, body []byte, out any, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("opensubtitles: %s: %w", op, err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("opensubtitles: build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opensubtitles: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return newStatusError(op, resp, string(data))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opensubtitles: decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

type searchResponse struct {
	Data []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
}

type searchAttributes struct {
	Language       string         `json:"language"`
	DownloadCount  int            `json:"download_count"`
	Ratings        float64        `json:"ratings"`
	FromTrusted    bool           `json:"from_trusted"`
	FeatureDetails featureDetails `json:"feature_details"`
	Files          []searchFile   `json:"files"`
}

type featureDetails struct {
	MovieName string `json:"movie_name"`
}

type searchFile struct {
	FileID   int64  `json:"file_id"`
	FileName string `json:"file_name"`
}

type downloadResponse struct {
	Link     string `json:"link"`
	FileName string `json:"file_name"`
}
