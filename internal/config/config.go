package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Processing service
	ServiceURL    string        `mapstructure:"service-url"`
	Simulate      bool          `mapstructure:"simulate"`
	SimulateDelay time.Duration `mapstructure:"simulate-delay"`

	// Ingestion limits
	MaxFileSize int64 `mapstructure:"max-file-size"`

	// Download targets
	OutputDir   string `mapstructure:"output-dir"`
	S3Bucket    string `mapstructure:"s3-bucket"`
	S3Region    string `mapstructure:"s3-region"`
	S3Prefix    string `mapstructure:"s3-prefix"`
	S3Endpoint  string `mapstructure:"s3-endpoint"`
	S3AccessKey string `mapstructure:"s3-access-key"`
	S3SecretKey string `mapstructure:"s3-secret-key"`

	// HTTP front end
	ListenAddr string        `mapstructure:"listen-addr"`
	SessionTTL time.Duration `mapstructure:"session-ttl"` // 0 keeps sessions until shutdown

	// FSM configuration; empty means a temporary directory per run
	FSMDBPath string `mapstructure:"fsm-db-path"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from .env, environment, config file, and defaults
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	// Set defaults
	viper.SetDefault("service-url", "http://localhost:5000")
	viper.SetDefault("simulate", false)
	viper.SetDefault("simulate-delay", 2*time.Second)
	viper.SetDefault("max-file-size", 5*1024*1024)
	viper.SetDefault("output-dir", ".")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("listen-addr", ":8080")
	viper.SetDefault("session-ttl", 30*time.Minute)
	viper.SetDefault("log-level", "info")

	// Environment variables (will be BGREMOVER_SERVICE_URL, etc.)
	viper.SetEnvPrefix("BGREMOVER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.bgremover")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if !c.Simulate {
		if c.ServiceURL == "" {
			return fmt.Errorf("service-url cannot be empty")
		}
		u, err := url.Parse(c.ServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("service-url must be an http(s) URL: %q", c.ServiceURL)
		}
	}
	if c.SimulateDelay < 0 {
		return fmt.Errorf("simulate-delay must be non-negative")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session-ttl must be non-negative")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty when s3-bucket is set")
	}
	if c.OutputDir == "" && c.S3Bucket == "" {
		return fmt.Errorf("output-dir cannot be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps a level name to its slog level
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log-level %q is not one of debug, info, warn, error", level)
	}
	return l, nil
}
