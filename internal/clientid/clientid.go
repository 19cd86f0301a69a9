// Package clientid persists a stable per-install client identifier, used as
// X-Plex-Client-Identifier and the Jellyfin DeviceId header value so a
// backend recognizes this install across restarts.
package clientid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fileName = "client-id"

// Load reads the client id from <cacheDir>/client-id, generating and
// persisting a new uuid on first run. The file is written with mode 0600
// since losing it resets every backend's notion of "this device".
func Load(cacheDir string) (string, error) {
	path := filepath.Join(cacheDir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read client id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("write client id: %w", err)
	}

	return id, nil
}
