package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	DefaultDBPath  = "./data/chatd"
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 30 * time.Second
)

// Load reads the YAML config at path and applies environment overrides.
// A missing file is not an error; the environment and defaults still
// apply so the service can run from env alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// applyEnv overlays CHATD_* environment variables onto cfg. Env wins
// over the file, mirroring how flags win over both in main.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATD_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CHATD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CHATD_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("CHATD_GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := os.Getenv("CHATD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = DefaultModel
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = Duration(DefaultTimeout)
	}
}
