// Package apprun supervises fedsyncd's long-running services under a suture
// tree so that a panic or returned error in one service restarts it instead
// of taking down the process.
package apprun

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults matching suture's own.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the hierarchical supervisor structure for fedsyncd.
//
// It is organized into three layers:
//   - connections: per-backend connection supervisors (C5)
//   - sync: sync orchestrator, progress sync queue, playlist service (C6/C7/C8)
//   - eventbus: the in-process event bus's own housekeeping (retention sweep)
//
// Isolating these means a crash loop in one backend's connection supervisor
// doesn't stop progress sync for the others.
type Tree struct {
	root        *suture.Supervisor
	connections *suture.Supervisor
	sync        *suture.Supervisor
	eventbus    *suture.Supervisor
	config      TreeConfig
}

// New creates a new supervisor tree with the given configuration.
func New(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("fedsyncd", rootSpec)
	connections := suture.New("connections", childSpec)
	sync := suture.New("sync", childSpec)
	eventbus := suture.New("eventbus", childSpec)

	root.Add(connections)
	root.Add(sync)
	root.Add(eventbus)

	return &Tree{
		root:        root,
		connections: connections,
		sync:        sync,
		eventbus:    eventbus,
		config:      config,
	}
}

// AddConnectionService adds a per-backend connection supervisor (C5).
func (t *Tree) AddConnectionService(svc suture.Service) suture.ServiceToken {
	return t.connections.Add(svc)
}

// AddSyncService adds a sync orchestrator, progress queue, or playlist service.
func (t *Tree) AddSyncService(svc suture.Service) suture.ServiceToken {
	return t.sync.Add(svc)
}

// AddEventBusService adds event bus housekeeping (e.g. subscription GC).
func (t *Tree) AddEventBusService(svc suture.Service) suture.ServiceToken {
	return t.eventbus.Add(svc)
}

// RemoveConnectionService removes a previously added connection service,
// used when a source is deleted from the catalog while fedsyncd is running.
func (t *Tree) RemoveConnectionService(token suture.ServiceToken) error {
	return t.connections.Remove(token)
}

// Serve starts the supervisor tree and blocks until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine, returning a
// channel that receives the terminal error (or nil) when it stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that failed to stop within
// ShutdownTimeout, for diagnosing a hung shutdown.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// RemoveAndWait removes a service and blocks until it has fully stopped,
// used before reconfiguring a source's connection supervisor in place.
func (t *Tree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.root.RemoveAndWait(token, timeout)
}
