package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// Client is the paced, retrying HTTP client used against the market-data provider
// ⭐ SSOT: every outbound provider request goes through this client
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	userAgent   string
	retryConfig RetryConfig

	// local pacing (per process) and optional fleet-wide pacing (shared through Redis)
	limiter      *rate.Limiter
	fleetLimiter *redis.RateLimiter
	fleetCfg     redis.RateLimitConfig
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// StatusError is returned when the provider answers with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// New creates a provider client from config
func New(cfg config.ProviderConfig, log *logger.Logger) *Client {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
		userAgent:  cfg.UserAgent,
		retryConfig: RetryConfig{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Enabled:      cfg.MaxRetries > 0,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	c.retryConfig.Enabled = maxRetries > 0
	return c
}

// WithFleetLimiter adds a Redis-backed limiter on top of the local one
func (c *Client) WithFleetLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.fleetLimiter = limiter
	c.fleetCfg = cfg
	return c
}

// Fetch performs a paced GET and returns the body of a 2xx response
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	if c.fleetLimiter != nil {
		if err := c.fleetLimiter.Wait(ctx, c.fleetCfg); err != nil {
			return nil, fmt.Errorf("fleet rate limit wait failed: %w", err)
		}
	}

	body, status, err := c.doWithRetry(ctx, url)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":      url,
			"status":   status,
			"duration": time.Since(start),
			"error":    err.Error(),
		}).Warn("Provider request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"url":      url,
		"status":   status,
		"bytes":    len(body),
		"duration": time.Since(start),
	}).Debug("Provider request completed")

	return body, nil
}

// doWithRetry executes the request with exponential backoff on retryable statuses
func (c *Client) doWithRetry(ctx context.Context, url string) ([]byte, int, error) {
	delay := c.retryConfig.InitialDelay
	maxRetries := 0
	if c.retryConfig.Enabled {
		maxRetries = c.retryConfig.MaxRetries
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, status, err := c.once(ctx, url)
		lastStatus = status
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		if status != 0 && !IsRetryableStatus(status) {
			return nil, status, err
		}
		if attempt == maxRetries {
			break
		}

		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay,
			"url":     url,
		}).Warn("Retrying provider request")

		select {
		case <-ctx.Done():
			return nil, lastStatus, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.retryConfig.MaxDelay {
			delay = c.retryConfig.MaxDelay
		}
	}

	return nil, lastStatus, lastErr
}

func (c *Client) once(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create GET request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// IsRetryableStatus reports whether a status should be retried (5xx and 429)
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
