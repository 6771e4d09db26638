package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SyncConfig holds cache and synchronization tuning
type SyncConfig struct {
	// ============ SCHEDULING ============
	DebounceMs         int `json:"debounce_ms"`
	StalenessSeconds   int `json:"staleness_seconds"`
	SweepIntervalSec   int `json:"sweep_interval_seconds"`
	UnloadFlushMs      int `json:"unload_flush_ms"`
	PushTimeoutSeconds int `json:"push_timeout_seconds"`

	// ============ RETRY ============
	// MaxAttempts of 0 keeps retrying forever at the sweep cadence
	MaxAttempts    int `json:"max_attempts"`
	BackoffBaseSec int `json:"backoff_base_seconds"`
	BackoffMaxSec  int `json:"backoff_max_seconds"`
}

// LoadSyncConfig loads sync configuration from file or environment
func LoadSyncConfig() *SyncConfig {
	// Try to load from file first
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}

	// Otherwise use defaults
	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file. Missing fields
// keep their defaults.
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := getDefaultSyncConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		DebounceMs:         getIntEnv("SYNC_DEBOUNCE_MS", 5000),
		StalenessSeconds:   getIntEnv("SYNC_STALENESS", 300),
		SweepIntervalSec:   getIntEnv("SYNC_SWEEP_INTERVAL", 120),
		UnloadFlushMs:      getIntEnv("SYNC_UNLOAD_FLUSH_MS", 2000),
		PushTimeoutSeconds: getIntEnv("SYNC_PUSH_TIMEOUT", 15),

		MaxAttempts:    getIntEnv("SYNC_MAX_ATTEMPTS", 0),
		BackoffBaseSec: getIntEnv("SYNC_BACKOFF_BASE", 0),
		BackoffMaxSec:  getIntEnv("SYNC_BACKOFF_MAX", 0),
	}
}

func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c *SyncConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

func (c *SyncConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *SyncConfig) UnloadFlush() time.Duration {
	return time.Duration(c.UnloadFlushMs) * time.Millisecond
}

func (c *SyncConfig) PushTimeout() time.Duration {
	return time.Duration(c.PushTimeoutSeconds) * time.Second
}

func (c *SyncConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSec) * time.Second
}

func (c *SyncConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSec) * time.Second
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
