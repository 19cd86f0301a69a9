// Package retry implements the backend-agnostic retry policy (spec.md
// §4.C4), generalized from the teacher's (*Manager).retryWithBackoff
// (internal/sync/helpers.go) into a standalone policy any backend driver
// can wrap a call with. The algorithm itself is resolved precisely by
// original_source/src/backends/plex/api/retry.rs: delay = min(base<<n, max),
// a server-supplied retry-after overrides that estimate (capped at max), and
// a wall-clock total_timeout is checked before every attempt.
package retry

import (
	"context"
	"errors"
	"time"
)

// Classification distinguishes errors worth retrying from ones that are not.
type Classification int

const (
	// Permanent errors are returned to the caller immediately.
	Permanent Classification = iota
	// Transient errors are retried, subject to Policy limits.
	Transient
)

// Classifiable is implemented by errors that know whether they are worth
// retrying, e.g. the HTTP status errors in internal/backend.
type Classifiable interface {
	error
	Classify() Classification
}

// RetryAfter is implemented by errors carrying a server-supplied
// Retry-After hint (e.g. HTTP 429 responses).
type RetryAfter interface {
	error
	RetryAfter() time.Duration
}

// Policy configures the retry loop. Zero values are replaced by Default's
// values in Execute.
type Policy struct {
	MaxAttempts  int           // default 3 (plus the initial attempt: 4 total)
	BaseDelay    time.Duration // default 100ms
	MaxDelay     time.Duration // default 10s
	TotalTimeout time.Duration // default 30s
}

// Default returns the policy's defaults per spec.md §4.C4.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		TotalTimeout: 30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := Default()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.TotalTimeout <= 0 {
		p.TotalTimeout = d.TotalTimeout
	}
	return p
}

// CalculateDelay returns min(BaseDelay * 2^attempt, MaxDelay) for the
// 0-indexed attempt number. Monotone non-decreasing and bounded by MaxDelay
// (spec.md §8 property 6).
func (p Policy) CalculateDelay(attempt int) time.Duration {
	p = p.withDefaults()

	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// AttemptFunc is one unit of work the policy executes and possibly retries.
type AttemptFunc func(ctx context.Context) error

// Execute runs fn, retrying transient errors per the policy's backoff
// schedule until MaxAttempts additional attempts are exhausted or
// TotalTimeout elapses. Non-Classifiable errors are treated as permanent:
// the policy only retries errors that explicitly say they are transient.
func (p Policy) Execute(ctx context.Context, fn AttemptFunc) error {
	p = p.withDefaults()

	deadline := time.Now().Add(p.TotalTimeout)
	var lastErr error

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		if time.Now().After(deadline) {
			if lastErr != nil {
				return lastErr
			}
			return context.DeadlineExceeded
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var classifiable Classifiable
		if !errors.As(err, &classifiable) || classifiable.Classify() == Permanent {
			return err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.CalculateDelay(attempt)
		var hinted RetryAfter
		if errors.As(err, &hinted) {
			if h := hinted.RetryAfter(); h > 0 {
				delay = h
				if delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
