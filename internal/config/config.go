// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

package config

import (
	"fmt"
	"time"
)

// Config is fedsyncd's entire external surface: where the catalog lives, how
// noisy to log, and the media origins to connect (spec.md §6). There is no
// HTTP server, auth mode, or metrics section here — fedsyncd is an embedded
// sync core driven by a UI process in the same binary, not a standalone
// service with its own listeners.
type Config struct {
	DBPath       string        `koanf:"db_path"`
	CacheDir     string        `koanf:"cache_dir"`
	LogLevel     string        `koanf:"log_level"`
	SyncInterval time.Duration `koanf:"sync_interval"`

	// MasterSecret derives the AES key internal/config.TokenEncryptor uses to
	// encrypt Source.AuthTokenEncrypted at rest. Required whenever any source
	// carries a bearer token (every Plex/Jellyfin source does).
	MasterSecret string `koanf:"master_secret"`

	Plex     []PlexSourceConfig     `koanf:"plex"`
	Jellyfin []JellyfinSourceConfig `koanf:"jellyfin"`
	Local    []LocalFolderConfig    `koanf:"local"`
}

// PlexSourceConfig seeds one catalog.Source of catalog.SourceTypePlex.
type PlexSourceConfig struct {
	Name  string `koanf:"name"`
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// JellyfinSourceConfig seeds one catalog.Source of catalog.SourceTypeJellyfin.
type JellyfinSourceConfig struct {
	Name   string `koanf:"name"`
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
	UserID string `koanf:"user_id"`
}

// LocalFolderConfig seeds one catalog.Source of catalog.SourceTypeLocal: a
// directory tree scanned in place rather than a remote server polled over
// HTTP.
type LocalFolderConfig struct {
	Name string `koanf:"name"`
	Path string `koanf:"path"`
}

func defaultConfig() *Config {
	return &Config{
		DBPath:       "fedsync.duckdb",
		CacheDir:     "cache",
		LogLevel:     "info",
		SyncInterval: 15 * time.Minute,
	}
}

// Validate rejects a Config that Load would otherwise hand to the rest of
// the application in a state it cannot act on: an unreadable log level, a
// source with no way to reach it, or any bearer-token source without a
// MasterSecret to encrypt it under.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("config: cache_dir must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("config: sync_interval must be positive, got %s", c.SyncInterval)
	}

	needsSecret := false

	for i, p := range c.Plex {
		if p.URL == "" {
			return fmt.Errorf("config: plex[%d]: url must not be empty", i)
		}
		if p.Token == "" {
			return fmt.Errorf("config: plex[%d] (%s): token must not be empty", i, p.URL)
		}
		needsSecret = true
	}
	for i, j := range c.Jellyfin {
		if j.URL == "" {
			return fmt.Errorf("config: jellyfin[%d]: url must not be empty", i)
		}
		if j.APIKey == "" {
			return fmt.Errorf("config: jellyfin[%d] (%s): api_key must not be empty", i, j.URL)
		}
		needsSecret = true
	}
	for i, l := range c.Local {
		if l.Path == "" {
			return fmt.Errorf("config: local[%d]: path must not be empty", i)
		}
	}

	if needsSecret && c.MasterSecret == "" {
		return fmt.Errorf("config: master_secret is required when any plex or jellyfin source is configured")
	}

	return nil
}

// HasAnySource reports whether at least one media origin is configured,
// mirroring the teacher's multi-backend HasAnyMediaServer check.
func (c *Config) HasAnySource() bool {
	return len(c.Plex) > 0 || len(c.Jellyfin) > 0 || len(c.Local) > 0
}

// SourceCount is the total number of configured media origins, useful for
// startup logging.
func (c *Config) SourceCount() int {
	return len(c.Plex) + len(c.Jellyfin) + len(c.Local)
}

// generateSourceName deterministically names a source from its platform and
// URL when the config omits an explicit name, the same hashing scheme the
// teacher's generateServerID used for its auto-generated ServerIDs.
func generateSourceName(platform, url string) string {
	if url == "" {
		return platform + "-default"
	}

	hash := uint32(0)
	for _, c := range url {
		hash = hash*31 + uint32(c)
	}

	return fmt.Sprintf("%s-%08x", platform, hash)
}

// Load reads configuration from the built-in defaults, an optional YAML
// config file, and environment variable overrides, in that order of
// increasing precedence. See LoadWithKoanf for the implementation.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
