package deviceauth

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const installIDFile = "install_id"

// LoadOrCreateInstallID returns the stable install identity stored under dir,
// creating it on first run. The identity is opaque, random, and lives until
// the state directory is wiped; it feeds the fingerprint and nothing else.
func LoadOrCreateInstallID(dir string) (string, error) {
	path := filepath.Join(dir, installIDFile)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}
