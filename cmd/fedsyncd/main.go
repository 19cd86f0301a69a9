// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

// Package main is the entry point for fedsyncd, the federation and sync
// core embedded in the desktop media player. It owns the local catalog, the
// connection supervisor, the sync orchestrator, and the playback progress
// queue; the UI process drives it through the view-model layer rather than
// over any network listener.
//
// # Application architecture
//
// main initializes components in the following order:
//
//  1. Configuration: load db/cache paths, log level, and configured media
//     origins (Koanf v2: defaults, optional config.yaml, env overrides).
//  2. Logging: reconfigure the global zerolog logger from the loaded level.
//  3. Catalog: open the DuckDB-backed local store and the event bus it
//     publishes committed writes on.
//  4. Sources: idempotently seed a catalog.Source row per configured Plex,
//     Jellyfin, and local folder origin, and construct its backend.Backend
//     driver.
//  5. Services: wire the connection supervisor, sync orchestrator, and
//     progress queue onto a suture supervisor tree and run it until a
//     SIGINT/SIGTERM signal arrives.
//
// # Configuration
//
// See internal/config's package doc for the full set of recognized
// environment variables and the config.yaml layout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fedsync/internal/apprun"
	"github.com/tomtom215/fedsync/internal/backend/jellyfin"
	"github.com/tomtom215/fedsync/internal/backend/local"
	"github.com/tomtom215/fedsync/internal/backend/plex"
	"github.com/tomtom215/fedsync/internal/catalog"
	"github.com/tomtom215/fedsync/internal/clientid"
	"github.com/tomtom215/fedsync/internal/config"
	"github.com/tomtom215/fedsync/internal/eventbus"
	"github.com/tomtom215/fedsync/internal/logging"
	"github.com/tomtom215/fedsync/internal/progressqueue"
	"github.com/tomtom215/fedsync/internal/registry"
	"github.com/tomtom215/fedsync/internal/supervisor"
	syncmgr "github.com/tomtom215/fedsync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json"})

	logging.Info().
		Int("sources", cfg.SourceCount()).
		Str("db_path", cfg.DBPath).
		Dur("sync_interval", cfg.SyncInterval).
		Msg("starting fedsyncd")

	if !cfg.HasAnySource() {
		logging.Warn().Msg("no plex, jellyfin, or local sources configured")
	}

	id, err := clientid.Load(cfg.CacheDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load client id")
	}
	logging.Info().Str("client_id", id).Msg("client identity established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	cat, err := catalog.Open(ctx, cfg.DBPath, bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open catalog")
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing catalog")
		}
	}()

	sources := catalog.NewSourceRepository(cat)
	libraries := catalog.NewLibraryRepository(cat)
	media := catalog.NewMediaRepository(cat)
	progress := catalog.NewProgressRepository(cat)
	syncStatus := catalog.NewSyncStatusRepository(cat)
	authProviders := catalog.NewAuthProviderRepository(cat)

	// catalog.HomeSectionRepository, PeopleRepository, and CacheRepository
	// are consumed by the UI-facing view-model layer, not by any background
	// service this process supervises; it constructs only the repositories
	// the connection supervisor, sync orchestrator, and progress queue need.

	var encryptor *config.TokenEncryptor
	if cfg.MasterSecret != "" {
		encryptor, err = config.NewTokenEncryptor(cfg.MasterSecret)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize token encryptor")
		}
	}

	backends := registry.New()
	tokenHeaders := make(map[string]string) // sourceID -> auth header name
	tokenValues := make(map[string]string)  // sourceID -> auth header value

	if err := seedSources(ctx, sources, authProviders, encryptor, cfg, backends, tokenHeaders, tokenValues); err != nil {
		logging.Fatal().Err(err).Msg("failed to seed configured sources")
	}
	defer func() {
		if err := backends.CloseAll(); err != nil {
			logging.Error().Err(err).Msg("error closing backend drivers")
		}
	}()

	prober := supervisor.NewHTTPProber(func(sourceID string) (string, string) {
		return tokenHeaders[sourceID], tokenValues[sourceID]
	})
	connSupervisor := supervisor.New(sources, prober)

	syncManager := syncmgr.NewManager(sources, libraries, media, syncStatus, backends)

	progressWorker := progressqueue.New(progress, sources, backends, progressqueue.DefaultConfig())

	// internal/playlist and internal/viewmodel are constructed by the UI
	// process against these same repositories, backends, and bus when it
	// starts; this process only owns the background services below.

	slogLogger := logging.NewSlogLogger()
	tree := apprun.New(slogLogger, apprun.DefaultTreeConfig())
	tree.AddConnectionService(connSupervisor)
	tree.AddSyncService(syncManager)
	tree.AddSyncService(progressWorker)
	// The event bus needs no background service: subscription slots are
	// reclaimed lazily on the next publish past a dead subscriber (see
	// internal/eventbus/bus.go), so AddEventBusService has nothing to host
	// until a future housekeeping task needs one.

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", fmt.Sprintf("%v", svc)).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("fedsyncd stopped gracefully")
}

// seedSources inserts a catalog.Source row for every configured Plex,
// Jellyfin, and local origin that is not already present, and constructs
// its backend.Backend driver into backends. Insert has no upsert form, so
// idempotency is handled here by checking the existing source set first; a
// source's deterministic Name (see config.generateSourceName) is reused as
// its catalog ID, so reruns against the same config never collide.
func seedSources(
	ctx context.Context,
	sources *catalog.SourceRepository,
	authProviders *catalog.AuthProviderRepository,
	encryptor *config.TokenEncryptor,
	cfg *config.Config,
	backends *registry.Registry,
	tokenHeaders, tokenValues map[string]string,
) error {
	existing, err := sources.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("list existing sources: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s.ID] = true
	}

	for _, p := range cfg.Plex {
		id := p.Name
		if !known[id] {
			if err := insertSource(ctx, sources, authProviders, encryptor, id, catalog.SourceTypePlex, p.URL, "plex-account", p.Token); err != nil {
				return err
			}
		}
		backends.Set(id, plex.New(plex.Config{SourceID: id, BaseURL: p.URL, Token: p.Token}))
		tokenHeaders[id] = "X-Plex-Token"
		tokenValues[id] = p.Token
	}

	for _, j := range cfg.Jellyfin {
		id := j.Name
		if !known[id] {
			if err := insertSource(ctx, sources, authProviders, encryptor, id, catalog.SourceTypeJellyfin, j.URL, "jellyfin-user", j.APIKey); err != nil {
				return err
			}
		}
		backends.Set(id, jellyfin.New(jellyfin.Config{SourceID: id, BaseURL: j.URL, APIKey: j.APIKey, UserID: j.UserID}))
		tokenHeaders[id] = "X-Emby-Token"
		tokenValues[id] = j.APIKey
	}

	for _, l := range cfg.Local {
		id := l.Name
		if !known[id] {
			if err := insertSource(ctx, sources, authProviders, nil, id, catalog.SourceTypeLocal, "", "local", ""); err != nil {
				return err
			}
		}
		backends.Set(id, local.New(local.Config{SourceID: id, Path: l.Path}))
	}

	return nil
}

// insertSource writes one catalog.Source row and, when a bearer token is
// present, its encrypted AuthProvider counterpart.
func insertSource(
	ctx context.Context,
	sources *catalog.SourceRepository,
	authProviders *catalog.AuthProviderRepository,
	encryptor *config.TokenEncryptor,
	id string,
	sourceType catalog.SourceType,
	connectionURL, providerKind, token string,
) error {
	var authProviderID *string
	if token != "" {
		if encryptor == nil {
			return fmt.Errorf("source %s: master_secret required to store its token", id)
		}
		encrypted, err := encryptor.Encrypt(token)
		if err != nil {
			return fmt.Errorf("source %s: encrypt token: %w", id, err)
		}
		if err := authProviders.Upsert(ctx, catalog.AuthProvider{
			ID:             id,
			ProviderKind:   providerKind,
			EncryptedToken: encrypted,
		}); err != nil {
			return fmt.Errorf("source %s: store auth provider: %w", id, err)
		}
		authProviderID = &id
	}

	var connURL *string
	if connectionURL != "" {
		connURL = &connectionURL
	}

	now := time.Now().UTC()
	return sources.Insert(ctx, catalog.Source{
		ID:             id,
		Name:           id,
		SourceType:     sourceType,
		AuthProviderID: authProviderID,
		ConnectionURL:  connURL,
		Connections: []catalog.ServerConnection{{
			URI:      connectionURL,
			Address:  connectionURL,
			Priority: 0,
		}},
		AuthStatus: catalog.AuthUnknown,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
