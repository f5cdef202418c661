package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caselane/caselane/pkg/observability"
	"github.com/caselane/caselane/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	OCR      OCRConfig      `yaml:"ocr"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds redis settings
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig holds token signing secrets per principal kind and session
// lifetimes
type AuthConfig struct {
	PlatformSecret string        `yaml:"platform_secret"`
	OrgSecret      string        `yaml:"org_secret"`
	LegacySecret   string        `yaml:"legacy_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

// UploadsConfig holds the upload file store location
type UploadsConfig struct {
	Dir string `yaml:"dir"`
}

// OCRConfig holds extraction settings
type OCRConfig struct {
	TesseractBinary string        `yaml:"tesseract_binary"`
	SweepInterval   string        `yaml:"sweep_interval"`
	StuckThreshold  time.Duration `yaml:"stuck_threshold"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration: defaults, then the optional YAML file
// named by CASELANE_CONFIG_FILE, then environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CASELANE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: DatabaseConfig{
			URL:         "postgres://localhost:5432/caselane?sslmode=disable",
			MaxConns:    25,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Auth: AuthConfig{
			TokenTTL:   12 * time.Hour,
			SessionTTL: 24 * time.Hour,
		},
		Uploads: UploadsConfig{
			Dir: "./uploads",
		},
		OCR: OCRConfig{
			SweepInterval:  "@every 10m",
			StuckThreshold: 15 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "CASELANE_HOST")
	setString(&c.Server.Port, "CASELANE_PORT")
	setDuration(&c.Server.ReadTimeout, "CASELANE_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "CASELANE_WRITE_TIMEOUT")
	setDuration(&c.Server.ShutdownTimeout, "CASELANE_SHUTDOWN_TIMEOUT")

	setString(&c.Database.URL, "CASELANE_DATABASE_URL")
	setInt(&c.Database.MaxConns, "CASELANE_DB_MAX_CONNS")
	setInt(&c.Database.MinConns, "CASELANE_DB_MIN_CONNS")

	setString(&c.Redis.URL, "CASELANE_REDIS_URL")
	setString(&c.Redis.Password, "CASELANE_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "CASELANE_REDIS_DB")

	setString(&c.Auth.PlatformSecret, "CASELANE_PLATFORM_SECRET")
	setString(&c.Auth.OrgSecret, "CASELANE_ORG_SECRET")
	setString(&c.Auth.LegacySecret, "CASELANE_LEGACY_SECRET")
	setDuration(&c.Auth.TokenTTL, "CASELANE_TOKEN_TTL")
	setDuration(&c.Auth.SessionTTL, "CASELANE_SESSION_TTL")

	setString(&c.Uploads.Dir, "CASELANE_UPLOADS_DIR")

	setString(&c.OCR.TesseractBinary, "CASELANE_TESSERACT_BINARY")
	setString(&c.OCR.SweepInterval, "CASELANE_OCR_SWEEP_INTERVAL")
	setDuration(&c.OCR.StuckThreshold, "CASELANE_OCR_STUCK_THRESHOLD")

	setString(&c.Logging.Level, "CASELANE_LOG_LEVEL")
}

// Validate checks settings that have no workable default
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Auth.PlatformSecret == "" || c.Auth.OrgSecret == "" || c.Auth.LegacySecret == "" {
		return fmt.Errorf("all three token secrets are required")
	}
	if c.Auth.PlatformSecret == c.Auth.OrgSecret || c.Auth.OrgSecret == c.Auth.LegacySecret || c.Auth.PlatformSecret == c.Auth.LegacySecret {
		return fmt.Errorf("token secrets must differ per principal kind")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("uploads directory is required")
	}
	return nil
}

// LogLevel parses the configured log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Logging.Level)
}

// PostgresConfig converts to the storage layer's settings type
func (c *Config) PostgresConfig() storage.PostgresConfig {
	return storage.PostgresConfig{
		URL:         c.Database.URL,
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		Timeout:     c.Database.Timeout,
		MaxLifetime: c.Database.MaxLifetime,
		MaxIdleTime: c.Database.MaxIdleTime,
	}
}

// RedisOptions converts to the storage layer's settings type
func (c *Config) RedisOptions() storage.RedisConfig {
	return storage.RedisConfig{
		URL:      c.Redis.URL,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		PoolSize: c.Redis.PoolSize,
	}
}

func setString(dest *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}

func setInt(dest *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dest = parsed
		}
	}
}

func setDuration(dest *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dest = parsed
		}
	}
}
