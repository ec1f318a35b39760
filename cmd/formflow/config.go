package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all formflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath             string `json:"db_path"`
	LogLevel           string `json:"log_level"`
	HTTPTimeoutSec     int    `json:"http_timeout_sec"`
	MaxResponseBody    int64  `json:"max_response_body"`
	TenantCacheTTLSec  int    `json:"tenant_cache_ttl_sec"`
	SchedulerEnabled   bool   `json:"scheduler_enabled"`
}

func defaultConfig() Config {
	return Config{
		DBPath:            filepath.Join(formflowDir(), "formflow.db"),
		LogLevel:          "info",
		HTTPTimeoutSec:    30,
		MaxResponseBody:   10 << 20,
		TenantCacheTTLSec: 300,
		SchedulerEnabled:  true,
	}
}

func formflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".formflow"
	}
	return filepath.Join(home, ".formflow")
}

func settingsPath() string {
	return filepath.Join(formflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FORMFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FORMFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FORMFLOW_HTTP_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeoutSec = n
		}
	}
	if v := os.Getenv("FORMFLOW_MAX_RESPONSE_BODY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxResponseBody = n
		}
	}
	if v := os.Getenv("FORMFLOW_TENANT_CACHE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TenantCacheTTLSec = n
		}
	}
	if v := os.Getenv("FORMFLOW_SCHEDULER"); v != "" {
		cfg.SchedulerEnabled = v == "true" || v == "1"
	}

	return cfg
}

func (c Config) httpTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c Config) tenantCacheTTL() time.Duration {
	return time.Duration(c.TenantCacheTTLSec) * time.Second
}
