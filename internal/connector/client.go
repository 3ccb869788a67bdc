// Package connector defines the shared connector-client contract (§4.1):
// a thin, typed façade over a third-party API that owns rate limiting,
// retry, pagination, credential presentation, and response decoding for a
// single source. Concrete connectors (salesforce, gitlab, teamwork, ...)
// embed the helpers here.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/logging"
	"github.com/brightlane/ingestflow/internal/ratelimit"
	"github.com/brightlane/ingestflow/internal/redaction"
	"github.com/brightlane/ingestflow/internal/resilience"
)

// Page is the generic (items, next_cursor) pagination result every
// listing endpoint returns. NextCursor is empty when there is no further
// page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Client is the minimal capability every concrete connector client shares:
// a rate-limited, retrying request dispatcher and a path-redacting logger.
// Concrete connectors compose this rather than implementing their own
// transport plumbing.
type Client struct {
	HTTP      *http.Client
	BaseURL   string
	Source    domain.Source
	TenantID  string
	Logger    *logging.Logger
	Limiter   *ratelimit.Limiter
	Breaker   *resilience.CircuitBreaker
	RetryCfg  resilience.RetryConfig
}

// ClientConfig mirrors the teacher's httputil.ClientConfig shape, extended
// with the rate-limit/circuit-breaker collaborators every connector needs.
type ClientConfig struct {
	BaseURL      string
	Source       domain.Source
	TenantID     string
	Timeout      time.Duration
	HTTPClient   *http.Client
	MaxBodyBytes int64
	Logger       *logging.Logger
	Limiter      *ratelimit.Limiter
	Breaker      *resilience.CircuitBreaker
	RetryCfg     resilience.RetryConfig
	// AccessToken is presented as a bearer token on every outbound
	// request via an auth-injecting Transport, so concrete connectors
	// never have to touch the Authorization header themselves.
	AccessToken string
}

const defaultMaxBodyBytes = 5 << 20 // 5MiB, large enough for bulk JSON pages

// bearerTransport injects "Authorization: Bearer <token>" ahead of
// whatever base RoundTripper the caller configured (or http.DefaultTransport).
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" && req.Header.Get("Authorization") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

// New builds a base Client, applying the timeout default the way the
// teacher's httputil.NewClient does; no response body-size limit is
// applied.
func New(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	} else if httpClient.Timeout == 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *httpClient
	clone.Transport = &bearerTransport{token: cfg.AccessToken, base: base}
	httpClient = &clone

	retryCfg := cfg.RetryCfg
	if retryCfg.MaxAttempts == 0 {
		retryCfg = resilience.DefaultRetryConfig()
	}

	return &Client{
		HTTP:     httpClient,
		BaseURL:  cfg.BaseURL,
		Source:   cfg.Source,
		TenantID: cfg.TenantID,
		Logger:   cfg.Logger,
		Limiter:  cfg.Limiter,
		Breaker:  cfg.Breaker,
		RetryCfg: retryCfg,
	}
}

// LogCall logs a completed request with its path redacted per the
// log-hygiene invariant (§4.1).
func (c *Client) LogCall(ctx context.Context, method, path string, status int, dur time.Duration) {
	if c.Logger == nil {
		return
	}
	c.Logger.LogConnectorCall(ctx, method, redaction.RedactPath(path), status, dur)
}

// Do runs a single HTTP round trip through the rate limiter and circuit
// breaker, without retry — callers compose this inside Dispatch for the
// full retry-engine-wrapped call.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter acquire: %w", err)
		}
	}

	var resp *http.Response
	var err error
	run := func() error {
		resp, err = c.HTTP.Do(req)
		return err
	}

	if c.Breaker != nil {
		if cbErr := c.Breaker.Execute(ctx, run); cbErr != nil {
			return nil, cbErr
		}
		return resp, nil
	}
	if runErr := run(); runErr != nil {
		return nil, runErr
	}
	return resp, nil
}

// Dispatch runs fn (a single attempt of a connector operation) through
// the retry engine described in §4.3, retrying on RateLimitedError and
// yielding ExtendVisibilityError when the computed delay crosses the
// threshold.
func (c *Client) Dispatch(ctx context.Context, fn func(attempt int) error) error {
	return resilience.RunWithRetry(ctx, c.RetryCfg, nil, fn)
}
