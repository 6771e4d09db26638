package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	Namespace string
	Gateway   GatewayConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Log       LogConfig
	Access    AccessConfig
	AI        AIConfig

	// AssumeOnline seeds the connectivity state before the first probe
	AssumeOnline bool
	// HealthCheckInterval in seconds, 0 disables probing (signals only)
	HealthCheckInterval int
}

// GatewayConfig describes the remote data gateway
type GatewayConfig struct {
	BaseURL     string
	Nonce       string
	NonceHeader string
	Timeout     int // seconds
}

// StorageConfig selects the durable local storage backend
type StorageConfig struct {
	Driver     string // memory, sqlite, postgres
	SQLitePath string
	// ExtraPrefixes are wiped together with the namespace on clear-all
	ExtraPrefixes []string
}

// DatabaseConfig holds database configuration for the postgres storage driver
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	DataPath string
	Silent   bool
}

// AccessConfig guards the local API. An empty TokenSecret leaves it open.
type AccessConfig struct {
	TokenSecret  string
	PasswordHash string // bcrypt
	TokenTTL     time.Duration
}

// AIConfig configures reply generation for the assistant module
type AIConfig struct {
	GeminiAPIKey string
	Model        string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	gatewayURL := os.Getenv("MODSPACE_GATEWAY_URL")
	if gatewayURL == "" {
		return nil, fmt.Errorf("MODSPACE_GATEWAY_URL is required")
	}

	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3220"),
		Namespace: getEnv("MODSPACE_NAMESPACE", "frameworkModular"),
		Gateway: GatewayConfig{
			BaseURL:     gatewayURL,
			Nonce:       os.Getenv("MODSPACE_NONCE"),
			NonceHeader: getEnv("MODSPACE_NONCE_HEADER", "X-WP-Nonce"),
			Timeout:     getIntEnv("MODSPACE_GATEWAY_TIMEOUT", 10),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "sqlite"),
			SQLitePath:    getEnv("SQLITE_PATH", "./data/modspace.db"),
			ExtraPrefixes: splitList(getEnv("STORAGE_EXTRA_PREFIXES", "tasksModule_")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "modspace"),
			DataPath: getEnv("PG_EMBEDDED_DATA", "./db_data"),
			Silent:   getBoolEnv("PG_SILENT", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Access: AccessConfig{
			TokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			PasswordHash: os.Getenv("ACCESS_PASSWORD_HASH"),
			TokenTTL:     time.Duration(getIntEnv("ACCESS_TOKEN_TTL_HOURS", 168)) * time.Hour,
		},
		AI: AIConfig{
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			Model:        os.Getenv("GEMINI_MODEL"),
		},
		AssumeOnline:        getBoolEnv("ASSUME_ONLINE", true),
		HealthCheckInterval: getIntEnv("HEALTH_CHECK_INTERVAL", 30),
	}

	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	if cfg.Access.TokenSecret != "" && cfg.Access.PasswordHash == "" {
		return nil, fmt.Errorf("ACCESS_PASSWORD_HASH is required when ACCESS_TOKEN_SECRET is set")
	}

	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
