package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Settings SettingsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	// Backend selects the preference store implementation: "sqlite",
	// "file" or "memory".
	Backend string
	DataDir string
}

type SettingsConfig struct {
	// Domain is the settings namespace the daemon serves. Several domains
	// can share one database; each daemon instance binds to one.
	Domain string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Settings: SettingsConfig{
			Domain: "default",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "prefd-data"
		}
	}
	return filepath.Join(dir, "prefd")
}

// Load reads configuration from the config file backend and applies
// environment overrides (PREFD_*). The backend is a flat JSON object at
// $XDG_CONFIG_HOME/prefd/config.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("invalid storage.backend %q: must be sqlite, file, or memory", cfg.Storage.Backend)
	}
	if cfg.Settings.Domain == "" {
		return fmt.Errorf("settings.domain must not be empty")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return nil
}
