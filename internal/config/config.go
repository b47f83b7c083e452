// Package config provides configuration for the Tether daemon.
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and environment variables with the TETHER_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the Tether daemon.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Identity  IdentityConfig  `yaml:"identity"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
	Port int    `yaml:"port"` // Server port (default: 7700)
}

// StorageConfig selects and locates the store backends.
type StorageConfig struct {
	// SessionEngine is the session-tier backend: sqlite or ristretto
	// (default: sqlite).
	SessionEngine string `yaml:"session_engine"`

	// ArchiveEngine is the long-term backend: chromem or postgres
	// (default: chromem).
	ArchiveEngine string `yaml:"archive_engine"`

	// DataPath is the directory for embedded store files (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is required when ArchiveEngine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EmbeddingConfig configures the embedding provider and its hardening.
type EmbeddingConfig struct {
	// Provider selects the embedder. Only "fake" ships in-tree; real
	// deployments plug their provider in at wiring time (default: fake).
	Provider string `yaml:"provider"`

	// Dimension is the vector length the provider produces (default: 384).
	Dimension int `yaml:"dimension"`

	// RatePerSecond caps embed calls; zero disables the limiter.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// RateBurst is the limiter burst size (default: 10).
	RateBurst int `yaml:"rate_burst"`
}

// IdentityConfig configures identity hashing.
type IdentityConfig struct {
	// HashPepper is mixed into every identifier hash. Set it per
	// deployment; an empty pepper still hashes but is linkable across
	// deployments.
	HashPepper string `yaml:"hash_pepper"`
}

// PipelineConfig tunes the memory pipeline.
type PipelineConfig struct {
	// TopK bounds nearest-neighbor reads per tier (default: 10).
	TopK int `yaml:"top_k"`

	// SessionTTL is the sliding session expiry (default: 48h).
	SessionTTL time.Duration `yaml:"session_ttl"`

	// ReadBudget bounds each context read; zero means unbounded.
	ReadBudget time.Duration `yaml:"read_budget"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// Mode is development or production; production requires APIToken
	// (default: development).
	Mode string `yaml:"mode"`

	// APIToken is the bearer token checked in production mode.
	APIToken string `yaml:"api_token"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error (default: info).
	Level string `yaml:"level"`
}

// Load reads configuration from the file named by TETHER_CONFIG_FILE (when
// set) and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("TETHER_CONFIG_FILE"))
}

// LoadFile reads configuration with an explicit YAML file path. An empty path
// skips the file layer.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.SessionEngine {
	case "sqlite", "ristretto":
	default:
		return fmt.Errorf("config: unknown session engine %q", c.Storage.SessionEngine)
	}
	switch c.Storage.ArchiveEngine {
	case "chromem":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres archive engine requires a DSN")
		}
	default:
		return fmt.Errorf("config: unknown archive engine %q", c.Storage.ArchiveEngine)
	}
	if c.Security.Mode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production mode requires TETHER_API_TOKEN")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7700,
		},
		Storage: StorageConfig{
			SessionEngine: "sqlite",
			ArchiveEngine: "chromem",
			DataPath:      "./data",
		},
		Embedding: EmbeddingConfig{
			Provider:  "fake",
			Dimension: 384,
			RateBurst: 10,
		},
		Pipeline: PipelineConfig{
			TopK:       10,
			SessionTTL: 48 * time.Hour,
		},
		Security: SecurityConfig{
			Mode: "development",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyEnv overlays TETHER_ environment variables onto cfg. The current value
// (default or file-provided) is kept when the variable is unset.
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("TETHER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("TETHER_PORT", cfg.Server.Port)

	cfg.Storage.SessionEngine = getEnv("TETHER_SESSION_ENGINE", cfg.Storage.SessionEngine)
	cfg.Storage.ArchiveEngine = getEnv("TETHER_ARCHIVE_ENGINE", cfg.Storage.ArchiveEngine)
	cfg.Storage.DataPath = getEnv("TETHER_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("TETHER_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Embedding.Provider = getEnv("TETHER_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Dimension = getEnvInt("TETHER_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.RatePerSecond = getEnvFloat("TETHER_EMBEDDING_RATE", cfg.Embedding.RatePerSecond)
	cfg.Embedding.RateBurst = getEnvInt("TETHER_EMBEDDING_BURST", cfg.Embedding.RateBurst)

	cfg.Identity.HashPepper = getEnv("TETHER_HASH_PEPPER", cfg.Identity.HashPepper)

	cfg.Pipeline.TopK = getEnvInt("TETHER_TOP_K", cfg.Pipeline.TopK)
	cfg.Pipeline.SessionTTL = getEnvDuration("TETHER_SESSION_TTL", cfg.Pipeline.SessionTTL)
	cfg.Pipeline.ReadBudget = getEnvDuration("TETHER_READ_BUDGET", cfg.Pipeline.ReadBudget)

	cfg.Security.Mode = getEnv("TETHER_SECURITY_MODE", cfg.Security.Mode)
	cfg.Security.APIToken = getEnv("TETHER_API_TOKEN", cfg.Security.APIToken)

	cfg.Logging.Level = getEnv("TETHER_LOG_LEVEL", cfg.Logging.Level)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
