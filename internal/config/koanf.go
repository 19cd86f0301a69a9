// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in priority
// order. The first one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fedsync/config.yaml",
	"/etc/fedsync/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// LoadWithKoanf loads configuration in three layers of increasing
// precedence: built-in defaults, an optional YAML config file, then
// environment variables.
//
// Multiple Plex/Jellyfin/local sources can only be expressed in the YAML
// file, since env vars have no natural array syntax; PLEX_URL/PLEX_TOKEN and
// their Jellyfin/local equivalents remain as a single-source convenience on
// top, applied only when the file declared no sources of that kind — the
// same array-with-singular-fallback idiom the teacher used for its
// PlexServers/Plex split.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyLegacySingleSourceEnv(cfg)
	normalizeSourceNames(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// findConfigFile honors ConfigPathEnvVar first, then searches
// DefaultConfigPaths, returning the first path that exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyLegacySingleSourceEnv synthesizes one Plex/Jellyfin/local source from
// flat env vars when the YAML file (if any) declared no array entries of
// that kind, mirroring the teacher's GetPlexServers fallback-to-singular
// behavior.
func applyLegacySingleSourceEnv(cfg *Config) {
	if len(cfg.Plex) == 0 {
		if url, token := os.Getenv("PLEX_URL"), os.Getenv("PLEX_TOKEN"); url != "" && token != "" {
			cfg.Plex = append(cfg.Plex, PlexSourceConfig{
				Name:  getEnv("PLEX_NAME", ""),
				URL:   url,
				Token: token,
			})
		}
	}

	if len(cfg.Jellyfin) == 0 {
		if url, apiKey := os.Getenv("JELLYFIN_URL"), os.Getenv("JELLYFIN_API_KEY"); url != "" && apiKey != "" {
			cfg.Jellyfin = append(cfg.Jellyfin, JellyfinSourceConfig{
				Name:   getEnv("JELLYFIN_NAME", ""),
				URL:    url,
				APIKey: apiKey,
				UserID: getEnv("JELLYFIN_USER_ID", ""),
			})
		}
	}

	if len(cfg.Local) == 0 {
		if path := os.Getenv("LOCAL_PATH"); path != "" {
			cfg.Local = append(cfg.Local, LocalFolderConfig{
				Name: getEnv("LOCAL_NAME", ""),
				Path: path,
			})
		}
	}
}

// normalizeSourceNames fills in a deterministic name for any source whose
// config omitted one, so the catalog never has to invent a display name at
// sync time.
func normalizeSourceNames(cfg *Config) {
	for i := range cfg.Plex {
		if cfg.Plex[i].Name == "" {
			cfg.Plex[i].Name = generateSourceName("plex", cfg.Plex[i].URL)
		}
	}
	for i := range cfg.Jellyfin {
		if cfg.Jellyfin[i].Name == "" {
			cfg.Jellyfin[i].Name = generateSourceName("jellyfin", cfg.Jellyfin[i].URL)
		}
	}
	for i := range cfg.Local {
		if cfg.Local[i].Name == "" {
			cfg.Local[i].Name = generateSourceName("local", cfg.Local[i].Path)
		}
	}
}

// envTransformFunc maps the narrow set of top-level environment variables
// fedsyncd reads to their koanf config paths. Per-source Plex/Jellyfin/local
// settings are not mapped here since koanf's env provider has no notion of
// array indices; use applyLegacySingleSourceEnv's flat single-source
// variables or the YAML file instead.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"db_path":       "db_path",
		"duckdb_path":   "db_path",
		"cache_dir":     "cache_dir",
		"log_level":     "log_level",
		"sync_interval": "sync_interval",
		"master_secret": "master_secret",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced callers that
// need direct access (e.g. a future settings UI rereading live values).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile watches path for changes and invokes callback on each one,
// for a future hot-reload of source credentials without a restart. The
// caller owns synchronizing the reloaded Config with whatever holds the
// previous one.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
