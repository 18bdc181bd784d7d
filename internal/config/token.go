package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The API bearer token lives in a secrets file next to the daemon's data,
// kept out of the regular config file so `config show` never prints it.

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "prefd", "secrets.json")
}

// GetAPIToken returns the API bearer token, generating and persisting one on
// first use. PREFD_API_TOKEN overrides the stored token.
func GetAPIToken() (string, error) {
	if env := strings.TrimSpace(os.Getenv("PREFD_API_TOKEN")); env != "" {
		return env, nil
	}
	return ensureToken(secretsFilePath())
}

func ensureToken(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		var secrets map[string]string
		if err := json.Unmarshal(data, &secrets); err == nil {
			if tok := secrets["api_token"]; tok != "" {
				return tok, nil
			}
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(map[string]string{"api_token": token}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("writing secrets file: %w", err)
	}
	return token, nil
}
