package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt:
// rate limiting and server errors.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TransportError is a failure before any response was read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "HTTP request failed: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsHardFailure reports a response that retrying will not fix (4xx other than 429).
func IsHardFailure(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Retryable()
}

type Options struct {
	Timeout    time.Duration
	RateLimit  models.RateLimitSettings
	Attempts   int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   int
	retryDelay time.Duration
	log        *logger.Logger
}

func NewClient(opts Options) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RateLimit.MaxRequests > 0 && opts.RateLimit.PerDuration > 0 {
		limit = rate.Every(opts.RateLimit.PerDuration / time.Duration(opts.RateLimit.MaxRequests))
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		log:        logger.Component("api"),
	}
}

// Do performs a GET and returns the body of a 2xx response. Transport errors,
// 429 and 5xx are retried with a fixed delay; other statuses fail at once.
func (c *Client) Do(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var body []byte
	attempt := 0
	safeURL := redact(rawURL)

	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		c.log.Debug("Making request to %s (attempt %d)", safeURL, attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return &TransportError{Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Err: fmt.Errorf("reading body: %w", err)}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = data
			return nil
		}

		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		if statusErr.Retryable() {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("Request to %s failed (attempt %d/%d), retrying in %s: %v", safeURL, attempt, c.attempts, wait, err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		c.log.Error("Request to %s failed after %d attempt(s): %v", safeURL, attempt, err)
		return nil, err
	}
	return body, nil
}

// redact hides the API key in logged URLs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
