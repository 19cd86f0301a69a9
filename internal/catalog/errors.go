package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fedsync/internal/retry"
)

// Sentinel errors returned by repositories. Backend drivers report their own
// equivalents (see internal/backend) that wrap these where the catalog layer
// and the backend layer share semantics (not-found, auth-required).
var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAuthRequired  = errors.New("catalog: authentication required")
	ErrCancelled     = errors.New("catalog: operation cancelled")
	ErrAlreadyExists = errors.New("catalog: already exists")
)

// RateLimitedError reports a backend's 429/Retry-After response. It satisfies
// retry.Classifiable and retry.RetryAfter so retry.Policy can honor the
// server-supplied hint without the catalog package importing any backend.
type RateLimitedError struct {
	Source string
	After  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("catalog: %s rate limited, retry after %s", e.Source, e.After)
}

func (e *RateLimitedError) Classify() retry.Classification { return retry.Transient }
func (e *RateLimitedError) RetryAfter() time.Duration      { return e.After }

// ConnectionError wraps a transport-level failure reaching a source. It is
// always transient: the connection supervisor, not the caller, decides when
// a source is too unhealthy to keep retrying.
type ConnectionError struct {
	Source string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("catalog: connecting to %s: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error                  { return e.Err }
func (e *ConnectionError) Classify() retry.Classification { return retry.Transient }

// NotFoundError gives a not-found failure the identity of what was missing,
// while still matching errors.Is(err, ErrNotFound) for callers that only
// care about the category.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: %s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool           { return target == ErrNotFound }
func (e *NotFoundError) Classify() retry.Classification { return retry.Permanent }
