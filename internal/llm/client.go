// Package llm talks to OpenAI-compatible chat-completion and image-generation
// endpoints with client-side rate limiting and retries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	chatEndpoint  = "/chat/completions"
	imageEndpoint = "/images/generations"

	defaultMaxAttempts       = 3
	defaultBaseBackoff       = 2 * time.Second
	defaultMaxBackoff        = time.Minute
	defaultTimeout           = 90 * time.Second
	defaultRequestsPerMinute = 30
	defaultImageSize         = "1024x1024"
)

// ErrEmptyResponse is returned when a completion carries no choices or images.
var ErrEmptyResponse = errors.New("llm: empty response")

// APIError is a non-retryable or exhausted error status from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, body)
}

// Config describes one provider endpoint.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerMinute int
	// RequestsPerDay and TokensPerMinute cap usage over rolling windows.
	// Zero leaves them uncapped.
	RequestsPerDay    int
	TokensPerMinute   int
	MaxAttempts       int
	BaseBackoff       time.Duration
	Timeout           time.Duration
	// ImageSize is used by GenerateImage, for example "1024x1024".
	ImageSize         string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryObserver registers a callback invoked with the endpoint on every retry.
func WithRetryObserver(observe func(endpoint string)) Option {
	return func(c *Client) { c.onRetry = observe }
}

// Client calls an OpenAI-compatible API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	usage   *usageWindow
	logger  *slog.Logger
	onRetry func(endpoint string)
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client for cfg. Zero fields take package defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = defaultImageSize
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		usage:   newUsageWindow(cfg.RequestsPerDay, cfg.TokensPerMinute),
		logger:  slog.Default(),
		onRetry: func(string) {},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured default model.
func (c *Client) Model() string { return c.cfg.Model }

// Usage reports requests and tokens spent over the rolling windows.
func (c *Client) Usage() UsageStats { return c.usage.snapshot() }

// Chat sends a chat-completion request. An empty Model uses the configured one.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	var resp ChatResponse
	if err := c.post(ctx, chatEndpoint, req, &resp); err != nil {
		return ChatResponse{}, err
	}
	c.usage.record(resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return ChatResponse{}, ErrEmptyResponse
	}
	return resp, nil
}

// Generate returns the text reply to a single system and user prompt.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage returns the decoded bytes of one generated image.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	req := imageRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.ImageSize,
		ResponseFormat: "b64_json",
	}
	var resp imageResponse
	if err := c.post(ctx, imageEndpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrEmptyResponse
	}
	return decodeBase64(resp.Data[0].B64JSON)
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm: encode request: %w", err)
	}
	raw, err := c.doWithRetry(ctx, endpoint, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("llm: decode response: %w", err)
	}
	return nil
}

// doWithRetry retries 429 and 5xx responses and transport errors with
// exponential backoff. A Retry-After header overrides the computed delay.
func (c *Client) doWithRetry(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	backoff := c.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.onRetry(endpoint)
		}
		if err := c.admit(ctx, endpoint); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llm: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		wait := backoff
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("llm: read response: %w", readErr)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
				if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
					wait = retryAfter
				}
			case resp.StatusCode >= 400:
				return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
			default:
				return raw, nil
			}
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		wait = jitter(wait)
		c.logger.WarnContext(ctx, "retrying model request", "endpoint", endpoint, "attempt", attempt, "wait", wait, "error", lastErr)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > defaultMaxBackoff {
			backoff = defaultMaxBackoff
		}
	}
	return nil, fmt.Errorf("llm: %s failed after %d attempts: %w", endpoint, c.cfg.MaxAttempts, lastErr)
}

// admit blocks while the token budget is spent and fails once the daily
// request cap is reached.
func (c *Client) admit(ctx context.Context, endpoint string) error {
	for {
		wait, err := c.usage.admit()
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		c.logger.InfoContext(ctx, "token budget spent, waiting", "endpoint", endpoint, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// jitter spreads d by up to 20% in either direction.
func jitter(d time.Duration) time.Duration {
	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread) + time.Duration(rand.Int64N(2*spread))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
