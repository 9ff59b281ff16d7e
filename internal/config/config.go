package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/diagipc/internal/logging"
	"github.com/pelletier/go-toml/v2"
)

// ServerConfig is the diagserver file shape.
type ServerConfig struct {
	ID        string `toml:"id"`
	Endpoint  string `toml:"endpoint"`
	AdminAddr string `toml:"admin_addr"`
	LogLevel  string `toml:"log_level"`
	// CORSOrigins enables CORS on the admin surface for the listed origins.
	CORSOrigins []string `toml:"cors_origins"`

	AcceptBackoffInitial string `toml:"accept_backoff_initial"`
	AcceptBackoffMax     string `toml:"accept_backoff_max"`
	SessionReadTimeout   string `toml:"session_read_timeout"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.ID == "" {
		cfg.ID = "diagserver"
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("server config missing id")
	}
	if strings.ContainsRune(cfg.Endpoint, 0) {
		return fmt.Errorf("endpoint contains a NUL byte")
	}
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" && !strings.Contains(addr, ":") {
		return fmt.Errorf("admin_addr must be host:port, got %q", cfg.AdminAddr)
	}
	for _, origin := range cfg.CORSOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin %q must be an http(s) URL", origin)
		}
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
		}
	}
	for key, raw := range map[string]string{
		"accept_backoff_initial": cfg.AcceptBackoffInitial,
		"accept_backoff_max":     cfg.AcceptBackoffMax,
		"session_read_timeout":   cfg.SessionReadTimeout,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}
