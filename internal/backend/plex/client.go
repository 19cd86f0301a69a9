// Package plex implements backend.Backend against the Plex Media Server
// API, grounded on the teacher's internal/sync/plex.go and
// internal/sync/plex_request.go (REST shape) and
// internal/sync/circuit_breaker.go (breaker wrapping), with the REST
// transport itself moved onto resty per internal/backend's package doc.
package plex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fedsync/internal/backend"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
	"github.com/tomtom215/fedsync/internal/retry"
)

// requestsPerSecond bounds outbound calls to one Plex server so a sync pass
// never floods a small home server's request queue.
const requestsPerSecond = 10

// Client drives one Plex Media Server.
type Client struct {
	sourceID string
	baseURL  string
	token    string

	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	retry   retry.Policy
	limiter *rate.Limiter

	machineIDMu sync.Mutex
	machineID   string
}

// Config carries the connection details the connection supervisor resolved
// (one of a Source's several ServerConnection candidates).
type Config struct {
	SourceID string
	BaseURL  string
	Token    string
}

func New(cfg Config) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("X-Plex-Token", cfg.Token).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second)

	breakerSettings := gobreaker.Settings{
		Name:        "plex-" + cfg.SourceID,
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
		token:    cfg.Token,
		http:     http,
		breaker:  gobreaker.NewCircuitBreaker[*resty.Response](breakerSettings),
		retry:    retry.Default(),
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

func (c *Client) SourceID() string { return c.sourceID }

func (c *Client) Close() error { return nil }

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
			if r.StatusCode() == 401 {
				return r, &backend.AuthError{SourceID: c.sourceID, Reason: r.Status()}
			}
			if r.StatusCode() == 429 {
				return r, &rateLimitedError{sourceID: c.sourceID, after: parseRetryAfter(r.Header().Get("Retry-After"))}
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

// identityResponse mirrors Plex's /identity envelope, grounded on
// original_source/src/backends/plex/api/client.rs's PlexIdentityResponse.
type identityResponse struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
		Version           string `json:"version"`
	} `json:"MediaContainer"`
}

// HealthCheck probes /identity, grounded on plex_server.go's per-connection
// identity probe used to pick the fastest/most reliable ServerConnection. It
// opportunistically caches the server's machineIdentifier for CreatePlayQueue,
// the same value client.rs's get_machine_id resolves from the same endpoint.
func (c *Client) HealthCheck(ctx context.Context) (backend.HealthStatus, error) {
	probeCtx, cancel := context.WithTimeout(ctx, backend.ProbeTimeout)
	defer cancel()

	start := time.Now()
	var identity identityResponse
	_, err := c.do(probeCtx, c.http.R().SetContext(probeCtx).SetResult(&identity), "GET", "/identity")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		logging.Debug().Str("component", "plex").Str("source_id", c.sourceID).Err(err).Msg("health check failed")
		return backend.HealthStatus{Reachable: false}, err
	}
	if identity.MediaContainer.MachineIdentifier != "" {
		c.setMachineID(identity.MediaContainer.MachineIdentifier)
	}
	return backend.HealthStatus{Reachable: true, LatencyMs: latency, Quality: catalog.QualityRemote, AuthStatus: catalog.AuthAuthenticated}, nil
}

func (c *Client) setMachineID(id string) {
	c.machineIDMu.Lock()
	c.machineID = id
	c.machineIDMu.Unlock()
}

// resolveMachineID returns the server's machineIdentifier, fetching and
// caching it via /identity on first use (client.rs's get_machine_id). Every
// PlayQueue URI Plex resolves server-side is keyed on this value.
func (c *Client) resolveMachineID(ctx context.Context) (string, error) {
	c.machineIDMu.Lock()
	cached := c.machineID
	c.machineIDMu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var identity identityResponse
	_, err := c.do(ctx, c.http.R().SetContext(ctx).SetResult(&identity), "GET", "/identity")
	if err != nil {
		return "", fmt.Errorf("plex: resolve machine id: %w", err)
	}
	id := identity.MediaContainer.MachineIdentifier
	if id == "" {
		return "", fmt.Errorf("plex: %s: /identity returned no machineIdentifier", c.sourceID)
	}
	c.setMachineID(id)
	return id, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if d, err := time.ParseDuration(header + "s"); err == nil {
		return d
	}
	return time.Second
}

type connError struct {
	sourceID string
	err      error
}

func (e *connError) Error() string                  { return fmt.Sprintf("plex %s: %v", e.sourceID, e.err) }
func (e *connError) Unwrap() error                  { return e.err }
func (e *connError) Classify() retry.Classification { return retry.Transient }

type rateLimitedError struct {
	sourceID string
	after    time.Duration
}

func (e *rateLimitedError) Error() string                  { return fmt.Sprintf("plex %s: rate limited", e.sourceID) }
func (e *rateLimitedError) Classify() retry.Classification { return retry.Transient }
func (e *rateLimitedError) RetryAfter() time.Duration      { return e.after }

var _ backend.Backend = (*Client)(nil)
