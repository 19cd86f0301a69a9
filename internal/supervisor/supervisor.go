// Package supervisor periodically probes every known source's candidate
// connections, picks the best reachable one, and keeps the catalog's
// connection_quality/connection_url/auth_status columns in sync with
// reality so the sync orchestrator and backend drivers always dial a live
// endpoint.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/logging"
)

// baseInterval is how often the supervisor wakes to check which sources are
// due for a re-probe.
const baseInterval = 10 * time.Second

// probeTimeout bounds a single candidate connection probe.
const probeTimeout = 5 * time.Second

// cadence maps a source's last-observed quality to how long before it is
// probed again. Healthier connections are rechecked less often.
var cadence = map[catalog.ConnectionQuality]time.Duration{
	catalog.QualityLocal:   300 * time.Second,
	catalog.QualityRemote:  120 * time.Second,
	catalog.QualityRelay:   30 * time.Second,
	catalog.QualityUnknown: 60 * time.Second,
}

// Prober probes a single candidate URI and reports whether it answered.
type Prober interface {
	// Probe hits a cheap, source-type-appropriate endpoint at uri and
	// returns the observed round-trip latency. A non-nil error means the
	// candidate is unavailable.
	Probe(ctx context.Context, sourceID string, sourceType catalog.SourceType, uri string) (latency time.Duration, err error)
}

// Supervisor is a suture.Service: Serve blocks, ticking at baseInterval
// until ctx is canceled.
type Supervisor struct {
	sources *catalog.SourceRepository
	prober  Prober

	mu        sync.Mutex
	nextCheck map[string]time.Time
}

// New constructs a Supervisor. prober is injected so tests can substitute a
// fake without opening sockets.
func New(sources *catalog.SourceRepository, prober Prober) *Supervisor {
	return &Supervisor{
		sources:   sources,
		prober:    prober,
		nextCheck: make(map[string]time.Time),
	}
}

// Serve implements suture.Service.
func (s *Supervisor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every source whose next_check_at has elapsed.
func (s *Supervisor) tick(ctx context.Context) {
	srcs, err := s.sources.FindAll(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("connection supervisor: list sources")
		return
	}

	now := time.Now()
	for _, src := range srcs {
		if src.SourceType == catalog.SourceTypeLocal {
			continue
		}
		if !s.due(src.ID, now) {
			continue
		}
		s.evaluate(ctx, src)
	}
}

func (s *Supervisor) due(sourceID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.nextCheck[sourceID]
	return !ok || !next.After(now)
}

func (s *Supervisor) schedule(sourceID string, quality catalog.ConnectionQuality) {
	wait, ok := cadence[quality]
	if !ok {
		wait = cadence[catalog.QualityUnknown]
	}
	s.mu.Lock()
	s.nextCheck[sourceID] = time.Now().Add(wait)
	s.mu.Unlock()
}

// evaluate probes every candidate connection for src in parallel, picks the
// best one, and persists a change if the active URL or quality moved.
func (s *Supervisor) evaluate(ctx context.Context, src catalog.Source) {
	results, anyAuthRequired := s.probeAll(ctx, src)

	best, ok := pickBest(results)
	quality := catalog.QualityUnknown
	if ok {
		quality = classify(best)
	}
	s.schedule(src.ID, quality)

	if anyAuthRequired && src.AuthStatus != catalog.AuthRequired {
		if err := s.sources.UpdateAuthStatus(ctx, src.ID, catalog.AuthRequired); err != nil {
			logging.Warn().Err(err).Str("source_id", src.ID).Msg("connection supervisor: record auth required")
		}
	}

	wasOnline := src.IsOnline
	if !ok {
		if wasOnline {
			if err := s.sources.UpdateConnectionState(ctx, src.ID, catalog.QualityUnknown, false, src.ConnectionFailureCount+1); err != nil {
				logging.Warn().Err(err).Str("source_id", src.ID).Msg("connection supervisor: record connection lost")
			}
		}
		return
	}

	updatedConnections := applyResults(src.Connections, results)
	urlChanged := derefStr(src.ConnectionURL) != best.connection.URI
	qualityChanged := src.ConnectionQuality != quality
	if urlChanged || qualityChanged || !wasOnline {
		if err := s.sources.UpdateActiveConnection(ctx, src.ID, best.connection.URI, updatedConnections, quality); err != nil {
			logging.Warn().Err(err).Str("source_id", src.ID).Msg("connection supervisor: update active connection")
		}
		return
	}
	// No material change, but still record a fresh successful probe.
	if err := s.sources.UpdateConnectionState(ctx, src.ID, quality, true, 0); err != nil {
		logging.Warn().Err(err).Str("source_id", src.ID).Msg("connection supervisor: record probe result")
	}
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

type probeResult struct {
	connection catalog.ServerConnection
	available  bool
	responseMs int64
}

// probeAll runs one probe per candidate connection concurrently, bounded by
// probeTimeout per attempt. A probe failing never fails the group: each
// result just records availability. The second return reports whether any
// candidate was reachable but rejected for credentials.
func (s *Supervisor) probeAll(ctx context.Context, src catalog.Source) ([]probeResult, bool) {
	results := make([]probeResult, len(src.Connections))
	authIssues := make([]bool, len(src.Connections))
	g, gctx := errgroup.WithContext(ctx)
	for i, conn := range src.Connections {
		i, conn := i, conn
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()

			start := time.Now()
			_, err := s.prober.Probe(probeCtx, src.ID, src.SourceType, conn.URI)
			latency := time.Since(start)

			var authErr *authRequiredError
			if errors.As(err, &authErr) {
				authIssues[i] = true
			}

			results[i] = probeResult{
				connection: conn,
				available:  err == nil,
				responseMs: latency.Milliseconds(),
			}
			return nil
		})
	}
	_ = g.Wait()

	anyAuthRequired := false
	for _, v := range authIssues {
		if v {
			anyAuthRequired = true
			break
		}
	}
	return results, anyAuthRequired
}

// pickBest selects the best available connection by:
// (available desc, local & not relay desc, not relay desc, priority asc,
// response_time_ms asc).
func pickBest(results []probeResult) (probeResult, bool) {
	var best probeResult
	found := false
	for _, r := range results {
		if !r.available {
			continue
		}
		if !found || better(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func better(a, b probeResult) bool {
	aLocal, bLocal := a.connection.Local && !a.connection.Relay, b.connection.Local && !b.connection.Relay
	if aLocal != bLocal {
		return aLocal
	}
	aRelay, bRelay := !a.connection.Relay, !b.connection.Relay
	if aRelay != bRelay {
		return aRelay
	}
	if a.connection.Priority != b.connection.Priority {
		return a.connection.Priority < b.connection.Priority
	}
	return a.responseMs < b.responseMs
}

func classify(r probeResult) catalog.ConnectionQuality {
	switch {
	case r.connection.Relay:
		return catalog.QualityRelay
	case r.connection.Local:
		return catalog.QualityLocal
	default:
		return catalog.QualityRemote
	}
}

// applyResults folds probe outcomes back into the connection list so
// is_available/response_time_ms stay current in the persisted JSON blob.
func applyResults(connections []catalog.ServerConnection, results []probeResult) []catalog.ServerConnection {
	out := make([]catalog.ServerConnection, len(connections))
	for i, r := range results {
		conn := r.connection
		conn.IsAvailable = r.available
		if r.available {
			ms := r.responseMs
			conn.ResponseTimeMs = &ms
		} else {
			conn.ResponseTimeMs = nil
		}
		out[i] = conn
	}
	return out
}
