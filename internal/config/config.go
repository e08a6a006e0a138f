// Package config provides configuration loading for the catalog ingestion
// pipeline. Supports YAML files, .env files, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline, CLI and API.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Render        RenderConfig        `yaml:"render"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Upload        UploadConfig        `yaml:"upload"`
	LLM           LLMConfig           `yaml:"llm"`
	Backend       BackendConfig       `yaml:"backend"`
	Cache         CacheConfig         `yaml:"cache"`
	Database      DatabaseConfig      `yaml:"database"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	RateLimit        float64       `yaml:"rate_limit"` // requests per second per client
	RateBurst        int           `yaml:"rate_burst"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	SessionIdle      time.Duration `yaml:"session_idle"` // idle sessions are dropped after this
}

// RenderConfig holds page rendering settings.
type RenderConfig struct {
	DPI         float64 `yaml:"dpi"`
	MaxEdge     int     `yaml:"max_edge"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// ExtractionConfig holds batch extraction settings.
type ExtractionConfig struct {
	Backend         string        `yaml:"backend"` // llm or service
	BatchSize       int           `yaml:"batch_size"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	FallbackEnabled bool          `yaml:"fallback_enabled"`
}

// PricingConfig holds price reconciliation settings.
type PricingConfig struct {
	Backend         string        `yaml:"backend"` // llm or service
	CallTimeout     time.Duration `yaml:"call_timeout"`
	FallbackEnabled bool          `yaml:"fallback_enabled"`
}

// JobsConfig holds server-driven job polling settings.
type JobsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
	StatusTTL    time.Duration `yaml:"status_ttl"`
}

// UploadConfig holds upload validation settings.
type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxPages          int      `yaml:"max_pages"`
}

// LLMConfig holds the vision model settings.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// BackendConfig holds the catalog API settings.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	History string        `yaml:"history"` // backend, database or none
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds upload history database settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     15 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			RateLimit:        5,
			RateBurst:        10,
			AllowedOrigins:   []string{"*"},
			SessionIdle:      time.Hour,
		},
		Render: RenderConfig{
			DPI:         150,
			MaxEdge:     2000,
			JPEGQuality: 85,
		},
		Extraction: ExtractionConfig{
			Backend:         "llm",
			BatchSize:       5,
			CallTimeout:     120 * time.Second,
			FallbackEnabled: true,
		},
		Pricing: PricingConfig{
			Backend:         "service",
			CallTimeout:     60 * time.Second,
			FallbackEnabled: true,
		},
		Jobs: JobsConfig{
			PollInterval: time.Second,
			MaxWait:      10 * time.Minute,
			StatusTTL:    time.Hour,
		},
		Upload: UploadConfig{
			MaxBytes:          20 << 20,
			AllowedExtensions: []string{".pdf"},
			MaxPages:          200,
		},
		LLM: LLMConfig{
			Model:   "google/gemini-2.5-flash-preview-09-2025",
			BaseURL: "https://openrouter.ai/api/v1/chat/completions",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 30 * time.Second,
			History: "database",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "catalog:",
			},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "/tmp/catalog-ingest.db",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "catalog-ingest",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("server rate_limit and rate_burst must be positive")
	}

	if c.Extraction.BatchSize < 1 {
		return fmt.Errorf("extraction batch_size must be at least 1, got %d", c.Extraction.BatchSize)
	}

	if c.Extraction.CallTimeout <= 0 {
		return fmt.Errorf("extraction call_timeout must be positive")
	}

	if c.Extraction.Backend != "llm" && c.Extraction.Backend != "service" {
		return fmt.Errorf("invalid extraction backend: %s", c.Extraction.Backend)
	}

	if c.Pricing.Backend != "llm" && c.Pricing.Backend != "service" {
		return fmt.Errorf("invalid pricing backend: %s", c.Pricing.Backend)
	}

	if c.Render.DPI <= 0 {
		return fmt.Errorf("render dpi must be positive")
	}

	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return fmt.Errorf("render jpeg_quality must be between 1 and 100, got %d", c.Render.JPEGQuality)
	}

	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs poll_interval must be positive")
	}

	if c.Jobs.MaxWait <= 0 {
		return fmt.Errorf("jobs max_wait must be positive")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	switch c.Backend.History {
	case "backend", "database", "none":
	default:
		return fmt.Errorf("invalid history sink: %s", c.Backend.History)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("CATALOG_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}

	if v := os.Getenv("CATALOG_API_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}

	if v := os.Getenv("EXTRACTION_BACKEND"); v != "" {
		cfg.Extraction.Backend = v
	}

	if v := os.Getenv("FALLBACK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Extraction.FallbackEnabled = b
			cfg.Pricing.FallbackEnabled = b
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		opts, err := redis.ParseURL(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = opts.Addr
		cfg.Cache.Redis.Password = opts.Password
		cfg.Cache.Redis.DB = opts.DB
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}
