// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setupTestEnv clears the environment, sets envVars, and returns a cleanup
// function that clears it again.
func setupTestEnv(t *testing.T, envVars map[string]string) func() {
	t.Helper()
	os.Clearenv()
	for k, v := range envVars {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("failed to set env var %s: %v", k, err)
		}
	}
	return func() {
		os.Clearenv()
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.DBPath != "fedsync.duckdb" {
		t.Errorf("DBPath = %q, want fedsync.duckdb", cfg.DBPath)
	}
	if cfg.CacheDir != "cache" {
		t.Errorf("CacheDir = %q, want cache", cfg.CacheDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v, want 15m", cfg.SyncInterval)
	}
	if cfg.HasAnySource() {
		t.Error("defaultConfig should have no sources configured")
	}
}

func TestValidate_RejectsEmptyDBPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.DBPath = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty db_path")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := defaultConfig()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got %v", err)
	}
}

func TestValidate_RejectsNonPositiveSyncInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.SyncInterval = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero sync_interval")
	}
}

func TestValidate_PlexSourceRequiresTokenAndSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Plex = []PlexSourceConfig{{Name: "home", URL: "http://plex.local:32400"}}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected missing-token error, got %v", err)
	}

	cfg.Plex[0].Token = "abc123"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "master_secret") {
		t.Fatalf("expected missing master_secret error, got %v", err)
	}

	cfg.MasterSecret = "a-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_JellyfinSourceRequiresAPIKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.MasterSecret = "a-secret"
	cfg.Jellyfin = []JellyfinSourceConfig{{Name: "archive", URL: "http://jf.local:8096"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

func TestValidate_LocalSourceRequiresPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Local = []LocalFolderConfig{{Name: "downloads"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing local path")
	}
}

func TestValidate_LocalSourceNeedsNoMasterSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Local = []LocalFolderConfig{{Name: "downloads", Path: "/srv/media"}}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("local-only config should not require master_secret: %v", err)
	}
}

func TestGenerateSourceName(t *testing.T) {
	a := generateSourceName("plex", "http://192.168.1.10:32400")
	b := generateSourceName("plex", "http://192.168.1.10:32400")
	c := generateSourceName("plex", "http://192.168.1.11:32400")

	if a != b {
		t.Errorf("generateSourceName should be deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Error("generateSourceName should differ for different URLs")
	}
	if !strings.HasPrefix(a, "plex-") {
		t.Errorf("generateSourceName(%q) missing platform prefix", a)
	}

	if got := generateSourceName("local", ""); got != "local-default" {
		t.Errorf("generateSourceName with empty url = %q, want local-default", got)
	}
}

func TestHasAnySourceAndSourceCount(t *testing.T) {
	cfg := defaultConfig()
	if cfg.HasAnySource() || cfg.SourceCount() != 0 {
		t.Fatal("empty config should report no sources")
	}

	cfg.Plex = []PlexSourceConfig{{URL: "http://a", Token: "t"}}
	cfg.Local = []LocalFolderConfig{{Path: "/srv/a"}, {Path: "/srv/b"}}

	if !cfg.HasAnySource() {
		t.Error("expected HasAnySource true")
	}
	if cfg.SourceCount() != 3 {
		t.Errorf("SourceCount = %d, want 3", cfg.SourceCount())
	}
}
