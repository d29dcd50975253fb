package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// RemoteError is a non-2xx answer from the financial store.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote status %d: %s", e.StatusCode, e.Detail)
}

// Temporary reports whether retrying the same request may succeed.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	Retries          int
	RetryBackoff     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// Client talks to a remote financial entry store.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.RetryBackoff,
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, logger),
		logger:  logger,
	}
}

// BreakerState reports the breaker state for health reporting.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Create books one installment remotely; retries reuse the idempotency key.
func (c *Client) Create(ctx context.Context, input CreateInput) (Entry, error) {
	if input.IdempotencyKey == "" {
		return Entry{}, fmt.Errorf("%w: idempotency key required", ErrInvalidInput)
	}
	body, err := json.Marshal(input)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	err = c.do(ctx, http.MethodPost, "/finance/entries", body, map[string]string{IdempotencyHeader: input.IdempotencyKey}, &entry)
	return entry, err
}

// VoidAllForDocument voids every live entry of the document remotely.
func (c *Client) VoidAllForDocument(ctx context.Context, documentID int64) (int, error) {
	var resp VoidResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/finance/documents/%d/void", documentID), nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Voided, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		lastErr = c.guard(func() error {
			return c.once(ctx, method, path, body, headers, out)
		})
		if lastErr == nil || !retryable(lastErr) || errors.Is(lastErr, ErrCircuitOpen) {
			return lastErr
		}
		c.logger.Warn("finance call retry", slog.String("path", path), slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(payload))
		var problem struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(payload, &problem) == nil && problem.Detail != "" {
			detail = problem.Detail
		}
		return &RemoteError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable treats transport failures, timeouts and 5xx/429 answers as transient.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	return !errors.Is(err, ErrInvalidInput)
}

// LocalClient calls the finance service in-process.
type LocalClient struct {
	service *Service
}

// NewLocalClient wraps a Service.
func NewLocalClient(service *Service) *LocalClient {
	return &LocalClient{service: service}
}

// Create delegates to Service.Create.
func (c *LocalClient) Create(ctx context.Context, input CreateInput) (Entry, error) {
	return c.service.Create(ctx, input)
}

// VoidAllForDocument delegates to Service.VoidAllForDocument.
func (c *LocalClient) VoidAllForDocument(ctx context.Context, documentID int64) (int, error) {
	return c.service.VoidAllForDocument(ctx, documentID)
}
