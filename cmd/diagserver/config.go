package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/diagipc/internal/config"
	"github.com/danmuck/diagipc/internal/diag"
)

type serviceConfig struct {
	ID          string
	Endpoint    string
	AdminAddr   string
	LogLevel    string
	CORSOrigins []string
	Diag        diag.Config
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		ID:   "diagserver",
		Diag: diag.DefaultConfig(),
	}
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw config.ServerConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load diagserver config: %w", err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		raw.ID = cfg.ID
	}
	if err := config.ValidateServerConfig(raw); err != nil {
		return serviceConfig{}, fmt.Errorf("validate diagserver config: %w", err)
	}

	cfg.ID = strings.TrimSpace(raw.ID)
	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}

	for key, dst := range map[string]*time.Duration{
		"accept_backoff_initial": &cfg.Diag.AcceptBackoff.InitialDelay,
		"accept_backoff_max":     &cfg.Diag.AcceptBackoff.MaxDelay,
		"session_read_timeout":   &cfg.Diag.SessionReadTimeout,
	} {
		if !meta.IsDefined(key) {
			continue
		}
		if err := overlayDuration(dst, durationValue(raw, key)); err != nil {
			return serviceConfig{}, fmt.Errorf("parse %s: %w", key, err)
		}
	}

	return cfg, nil
}

func durationValue(raw config.ServerConfig, key string) string {
	switch key {
	case "accept_backoff_initial":
		return raw.AcceptBackoffInitial
	case "accept_backoff_max":
		return raw.AcceptBackoffMax
	default:
		return raw.SessionReadTimeout
	}
}

// overlayDuration leaves dst at its default when raw is blank.
func overlayDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
