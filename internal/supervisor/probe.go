package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tomtom215/fedsync/internal/catalog"
)

// probePath is the cheap endpoint hit per source type, mirroring the
// /identity check used to verify a Plex connection and Jellyfin's
// equivalent ping.
func probePath(sourceType catalog.SourceType) string {
	switch sourceType {
	case catalog.SourceTypePlex:
		return "/identity"
	case catalog.SourceTypeJellyfin:
		return "/System/Ping"
	default:
		return "/"
	}
}

// authRequiredError marks a probe that reached the server but was rejected
// for credentials, distinct from an unreachable connection.
type authRequiredError struct {
	status int
}

func (e *authRequiredError) Error() string {
	return fmt.Sprintf("probe rejected: status %d", e.status)
}

// HTTPProber probes candidate connections over plain HTTP(S), carrying the
// per-source auth header needed to tell "unreachable" apart from
// "reachable but unauthenticated".
type HTTPProber struct {
	client *resty.Client
	tokens func(sourceID string) (header, value string)
}

// NewHTTPProber builds a prober. tokens resolves the auth header a given
// source's candidate connections need (X-Plex-Token or X-Emby-Token); it
// may return empty strings for local-only setups under test.
func NewHTTPProber(tokens func(sourceID string) (header, value string)) *HTTPProber {
	return &HTTPProber{
		client: resty.New().SetTimeout(probeTimeout),
		tokens: tokens,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, sourceID string, sourceType catalog.SourceType, uri string) (time.Duration, error) {
	req := p.client.R().SetContext(ctx)
	if header, value := p.tokens(sourceID); header != "" {
		req.SetHeader(header, value)
	}
	start := time.Now()
	resp, err := req.Execute("GET", uri+probePath(sourceType))
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return latency, &authRequiredError{status: resp.StatusCode()}
	}
	if resp.IsError() {
		return latency, fmt.Errorf("probe %s: unexpected status %s", uri, resp.Status())
	}
	return latency, nil
}
