// Package jellyfin implements backend.Backend against the Jellyfin REST API,
// grounded on Raymice-jellyfin-duplicate/client/jellyfin/http/httpClient.go's
// resty-based client shape.
package jellyfin

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
	"github.com/tomtom215/fedsync/internal/retry"
)

// requestsPerSecond bounds outbound calls to one Jellyfin server.
const requestsPerSecond = 10

// Client drives one Jellyfin server.
type Client struct {
	sourceID string
	baseURL  string
	apiKey   string
	userID   string

	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	retry   retry.Policy
	limiter *rate.Limiter
}

// Config carries the connection details the connection supervisor resolved.
type Config struct {
	SourceID string
	BaseURL  string
	APIKey   string
	UserID   string
}

// New constructs a Client. The resty client carries the API key as a
// default header rather than per-request, mirroring httpClient.go.
func New(cfg Config) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("X-Emby-Token", cfg.APIKey).
		SetTimeout(15 * time.Second)

	breakerSettings := gobreaker.Settings{
		Name:        "jellyfin-" + cfg.SourceID,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		sourceID: cfg.SourceID,
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		userID:   cfg.UserID,
		http:     http,
		breaker:  gobreaker.NewCircuitBreaker[*resty.Response](breakerSettings),
		retry:    retry.Default(),
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

func (c *Client) SourceID() string { return c.sourceID }

func (c *Client) Close() error { return nil }

// do runs one resty request through the circuit breaker and retry.Policy,
// classifying non-2xx responses the way retry.Execute expects.
func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *resty.Response
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		var attemptErr error
		resp, attemptErr = c.breaker.Execute(func() (*resty.Response, error) {
			r, err := req.Execute(method, path)
			if err != nil {
				return r, &connError{sourceID: c.sourceID, err: err}
			}
			if r.StatusCode() == 401 || r.StatusCode() == 403 {
				return r, &backend.AuthError{SourceID: c.sourceID, Reason: r.Status()}
			}
			if r.StatusCode() == 429 {
				after := parseRetryAfter(r.Header().Get("Retry-After"))
				return r, &rateLimitedError{sourceID: c.sourceID, after: after}
			}
			if r.IsError() {
				return r, &connError{sourceID: c.sourceID, err: fmt.Errorf("unexpected status %s", r.Status())}
			}
			return r, nil
		})
		return attemptErr
	})
	return resp, err
}

func (c *Client) HealthCheck(ctx context.Context) (backend.HealthStatus, error) {
	start := time.Now()
	_, err := c.do(ctx, c.http.R().SetContext(ctx), "GET", "/System/Ping")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		logging.Debug().Str("component", "jellyfin").Str("source_id", c.sourceID).Err(err).Msg("health check failed")
		return backend.HealthStatus{Reachable: false}, err
	}
	return backend.HealthStatus{Reachable: true, LatencyMs: latency, Quality: catalog.QualityRemote, AuthStatus: catalog.AuthAuthenticated}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return time.Second
}

type connError struct {
	sourceID string
	err      error
}

func (e *connError) Error() string                  { return fmt.Sprintf("jellyfin %s: %v", e.sourceID, e.err) }
func (e *connError) Unwrap() error                  { return e.err }
func (e *connError) Classify() retry.Classification { return retry.Transient }

type rateLimitedError struct {
	sourceID string
	after    time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("jellyfin %s: rate limited", e.sourceID)
}
func (e *rateLimitedError) Classify() retry.Classification { return retry.Transient }
func (e *rateLimitedError) RetryAfter() time.Duration      { return e.after }

var _ backend.Backend = (*Client)(nil)
