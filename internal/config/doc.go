// fedsyncd — federation & sync core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fedsync

/*
Package config loads fedsyncd's configuration: where the local catalog
database lives, how noisy to log, and which Plex servers, Jellyfin servers,
and local folders to treat as media origins.

# Configuration sources

Three layers are merged in order of increasing precedence:

  - Built-in defaults (defaultConfig)
  - An optional YAML file (config.yaml, config.yml, or the path in
    CONFIG_PATH), the only way to declare more than one source of a given
    kind
  - Environment variables, for the top-level scalars plus a single
    convenience Plex/Jellyfin/local source each

# Environment variables

	DB_PATH / DUCKDB_PATH  DuckDB catalog file path (default: fedsync.duckdb)
	CACHE_DIR              Directory for cached thumbnails and the client id (default: cache)
	LOG_LEVEL              debug, info, warn, or error (default: info)
	SYNC_INTERVAL          Background full-sync cadence, e.g. "15m" (default: 15m)
	MASTER_SECRET          Key material for encrypting stored auth tokens

	PLEX_URL, PLEX_TOKEN, PLEX_NAME
	JELLYFIN_URL, JELLYFIN_API_KEY, JELLYFIN_USER_ID, JELLYFIN_NAME
	LOCAL_PATH, LOCAL_NAME

# Multiple sources

To connect more than one Plex or Jellyfin server, or more than one local
folder, list them under plex:/jellyfin:/local: in a YAML config file:

	db_path: /data/fedsync.duckdb
	cache_dir: /data/cache
	master_secret: a-long-random-string
	plex:
	  - name: home
	    url: http://192.168.1.10:32400
	    token: ${PLEX_TOKEN_HOME}
	  - name: parents
	    url: https://parents.example.com:32400
	    token: ${PLEX_TOKEN_PARENTS}
	jellyfin:
	  - name: archive
	    url: http://192.168.1.20:8096
	    api_key: ${JELLYFIN_API_KEY}
	local:
	  - name: downloads
	    path: /srv/media/downloads

# Validation

Load fails closed: an empty db_path or cache_dir, an unrecognized
log_level, a source missing its URL or credential, or any Plex/Jellyfin
source configured without a master_secret to encrypt its token under.

# Auth token encryption

Stored auth tokens (catalog.Source.AuthTokenEncrypted) are AES-256-GCM
encrypted with a key derived from MasterSecret via HKDF-SHA256; see
TokenEncryptor in encryption.go.
*/
package config
