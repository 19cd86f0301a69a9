// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithKoanf_DefaultsOnly(t *testing.T) {
	defer setupTestEnv(t, nil)()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != "fedsync.duckdb" {
		t.Errorf("DBPath = %q, want fedsync.duckdb", cfg.DBPath)
	}
	if cfg.HasAnySource() {
		t.Error("expected no sources with no env or file configured")
	}
}

func TestLoadWithKoanf_TopLevelEnvOverrides(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"DB_PATH":   "/data/fedsync.duckdb",
		"CACHE_DIR": "/data/cache",
		"LOG_LEVEL": "debug",
	})()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != "/data/fedsync.duckdb" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.CacheDir != "/data/cache" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadWithKoanf_LegacySinglePlexSource(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"PLEX_URL":      "http://plex.local:32400",
		"PLEX_TOKEN":    "tok-123",
		"MASTER_SECRET": "a-secret",
	})()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Plex) != 1 {
		t.Fatalf("expected one synthesized plex source, got %d", len(cfg.Plex))
	}
	if cfg.Plex[0].URL != "http://plex.local:32400" || cfg.Plex[0].Token != "tok-123" {
		t.Errorf("unexpected plex source: %+v", cfg.Plex[0])
	}
	if cfg.Plex[0].Name == "" {
		t.Error("expected auto-generated name for unnamed plex source")
	}
}

func TestLoadWithKoanf_LegacySingleLocalSource(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"LOCAL_PATH": "/srv/media",
		"LOCAL_NAME": "downloads",
	})()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Local) != 1 || cfg.Local[0].Path != "/srv/media" || cfg.Local[0].Name != "downloads" {
		t.Fatalf("unexpected local sources: %+v", cfg.Local)
	}
}

func TestLoadWithKoanf_YAMLFileDeclaresMultipleSources(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"MASTER_SECRET": "a-secret",
	})()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
db_path: /data/fedsync.duckdb
cache_dir: /data/cache
plex:
  - name: home
    url: http://192.168.1.10:32400
    token: tok-home
  - name: parents
    url: https://parents.example.com:32400
    token: tok-parents
local:
  - name: downloads
    path: /srv/media/downloads
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	os.Setenv("CONFIG_PATH", path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Plex) != 2 {
		t.Fatalf("expected two plex sources from file, got %d", len(cfg.Plex))
	}
	if len(cfg.Local) != 1 || cfg.Local[0].Name != "downloads" {
		t.Fatalf("unexpected local sources: %+v", cfg.Local)
	}
}

func TestLoadWithKoanf_FileSourcesSuppressLegacyEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
plex:
  - name: home
    url: http://192.168.1.10:32400
    token: tok-home
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	defer setupTestEnv(t, map[string]string{
		"CONFIG_PATH":   path,
		"MASTER_SECRET": "a-secret",
		"PLEX_URL":      "http://should-be-ignored:32400",
		"PLEX_TOKEN":    "should-be-ignored",
	})()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Plex) != 1 || cfg.Plex[0].URL != "http://192.168.1.10:32400" {
		t.Fatalf("legacy env fallback should not run when file has entries, got %+v", cfg.Plex)
	}
}

func TestLoadWithKoanf_InvalidConfigFailsValidation(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"LOG_LEVEL": "verbose",
	})()

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error for bad log_level")
	}
}

func TestFindConfigFile_PrefersEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("db_path: /tmp/x.duckdb\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	defer setupTestEnv(t, map[string]string{"CONFIG_PATH": path})()

	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}
}

func TestFindConfigFile_NoneFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(cwd)

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer setupTestEnv(t, nil)()

	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}
}
