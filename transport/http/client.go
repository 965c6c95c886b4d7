package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
	"github.com/sony/gobreaker/v2"
)

// Config holds backend client configuration
type Config struct {
	APIURL       string
	AnalyticsURL string
	Timeout      time.Duration
	// MaxRetries applies to non-mutating requests only
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Breaker is disabled when nil
	Breaker *BreakerConfig
}

// DefaultConfig returns defaults pointing at a local backend
func DefaultConfig() Config {
	breaker := DefaultBreakerConfig("mercuria-api")
	return Config{
		APIURL:       "http://localhost:9000/api/v1",
		AnalyticsURL: "http://localhost:9000/api/v1",
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		Breaker:      &breaker,
	}
}

// APIClient implements ports.Transport over HTTP/JSON
type APIClient struct {
	httpClient *http.Client
	config     Config
	breaker    *gobreaker.CircuitBreaker[*core.Response]
	logger     *slog.Logger
}

// Option configures an APIClient
type Option func(*APIClient)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is kept.
func WithHTTPClient(c *http.Client) Option {
	return func(a *APIClient) { a.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(a *APIClient) { a.logger = l }
}

// NewAPIClient creates a new backend client
func NewAPIClient(cfg Config, opts ...Option) *APIClient {
	c := &APIClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Breaker != nil {
		c.breaker = newBreaker(*cfg.Breaker, c.logger)
	}
	return c
}

var _ ports.Transport = (*APIClient)(nil)

// RoundTrip sends req and returns the reply or a classified error
func (c *APIClient) RoundTrip(ctx context.Context, req core.Request) (*core.Response, error) {
	if c.breaker == nil {
		return c.do(ctx, req)
	}

	resp, err := c.breaker.Execute(func() (*core.Response, error) {
		return c.do(ctx, req)
	})
	if err != nil && breakerRejected(err) {
		return nil, core.NewNetworkError(err)
	}
	return resp, err
}

func (c *APIClient) do(ctx context.Context, req core.Request) (*core.Response, error) {
	target, err := c.url(req)
	if err != nil {
		return nil, err
	}

	retries := 0
	if !req.Mutating() {
		retries = c.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := c.config.RetryWaitMin * time.Duration(1<<uint(attempt-1))
			if c.config.RetryWaitMax > 0 && wait > c.config.RetryWaitMax {
				wait = c.config.RetryWaitMax
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, core.NewNetworkError(ctx.Err())
			}
		}

		resp, err := c.once(ctx, req, target)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *APIClient) once(ctx context.Context, req core.Request, target string) (*core.Response, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.Method, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return nil, core.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, core.NewNetworkError(fmt.Errorf("read response body: %w", err))
	}

	c.logger.DebugContext(ctx, "backend request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, ParseResponseError(httpResp.StatusCode, raw)
	}
	return &core.Response{Status: httpResp.StatusCode, Body: raw}, nil
}

func (c *APIClient) url(req core.Request) (string, error) {
	base := c.config.APIURL
	if req.Service == core.ServiceAnalytics {
		base = c.config.AnalyticsURL
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request url: %w", err)
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String(), nil
}

// retryable reports whether a read may be attempted again. 501 never succeeds.
func retryable(err error) bool {
	apiErr, ok := err.(*core.APIError)
	if !ok {
		return false
	}
	if apiErr.Kind == core.KindNetwork {
		return true
	}
	return apiErr.Status >= 500 && apiErr.Status != http.StatusNotImplemented
}
