package server

import (
	"fmt"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/retention"
	"github.com/fedih/telemetry-store/pkg/broker"
	"github.com/fedih/telemetry-store/pkg/config"
)

// Config represents the server configuration
type Config struct {
	// Server settings
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `yaml:"port" env:"SERVER_PORT" default:"8668"`

	// TLS settings
	TLSEnabled  bool   `yaml:"tls_enabled" env:"TLS_ENABLED" default:"false"`
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE" default:""`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE" default:""`

	// Timeouts
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"30s"`

	// CORS settings
	CORSEnabled        bool     `yaml:"cors_enabled" env:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `yaml:"cors_allowed_methods" env:"CORS_ALLOWED_METHODS" default:"GET,POST,OPTIONS"`
	CORSAllowedHeaders []string `yaml:"cors_allowed_headers" env:"CORS_ALLOWED_HEADERS" default:"*"`

	// Rate limiting
	RateLimitEnabled bool `yaml:"rate_limit_enabled" env:"RATE_LIMIT_ENABLED" default:"false"`
	RateLimitRPS     int  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst   int  `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" default:"200"`

	// Request logging
	LogRequests bool `yaml:"log_requests" env:"LOG_REQUESTS" default:"true"`

	// Logging
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"json"`

	// Health check
	HealthCheckPath string `yaml:"health_check_path" env:"HEALTH_CHECK_PATH" default:"/health"`

	// Metrics
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"METRICS_ENABLED" default:"true"`
	MetricsPath    string `yaml:"metrics_path" env:"METRICS_PATH" default:"/metrics"`

	// API settings
	MaxRequestSize  int64  `yaml:"max_request_size" env:"MAX_REQUEST_SIZE" default:"10485760"` // 10MB
	RequestIDHeader string `yaml:"request_id_header" env:"REQUEST_ID_HEADER" default:"X-Request-ID"`

	// Query defaults
	DefaultLastN int `yaml:"default_last_n" env:"DEFAULT_LAST_N" default:"100"`
	MaxLastN     int `yaml:"max_last_n" env:"MAX_LAST_N" default:"10000"`

	// Database configuration
	Database *database.Config `yaml:"database"`

	// Retention configuration
	Retention *retention.Config `yaml:"retention"`

	// Context broker configuration
	Broker *broker.Config `yaml:"broker"`
}

// GetDefaultConfig returns a default server configuration
func GetDefaultConfig() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               8668,
		TLSEnabled:         false,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		CORSEnabled:        true,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"*"},
		RateLimitEnabled:   false,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		LogRequests:        true,
		LogLevel:           "info",
		LogFormat:          "json",
		HealthCheckPath:    "/health",
		MetricsEnabled:     true,
		MetricsPath:        "/metrics",
		MaxRequestSize:     10 * 1024 * 1024, // 10MB
		RequestIDHeader:    "X-Request-ID",
		DefaultLastN:       database.DefaultLastN,
		MaxLastN:           10000,
		Database:           database.GetDefaultConfig(),
		Retention:          retention.GetDefaultConfig(),
		Broker:             broker.GetDefaultConfig(),
	}
}

// Load reads configuration from a file and then applies environment
// overrides on top.
func (c *Config) Load(configPath string) error {
	loader := config.NewLoader("")

	if err := loader.LoadFromFile(configPath, c); err != nil {
		return err
	}

	return loader.LoadFromEnv(c)
}

// LoadFromEnv applies environment variable overrides
func (c *Config) LoadFromEnv() error {
	return config.NewLoader("").LoadFromEnv(c)
}

// GetAddress returns the server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS cert file is required when TLS is enabled")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS key file is required when TLS is enabled")
		}
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS <= 0 {
			return fmt.Errorf("rate limit RPS must be positive")
		}
		if c.RateLimitBurst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("max request size must be positive")
	}

	if c.DefaultLastN <= 0 {
		return fmt.Errorf("default last N must be positive")
	}

	if c.MaxLastN <= 0 || c.MaxLastN < c.DefaultLastN {
		return fmt.Errorf("max last N must be positive and >= default last N")
	}

	if c.Retention != nil {
		if err := c.Retention.Validate(); err != nil {
			return err
		}
	}

	if c.Broker != nil {
		if err := c.Broker.Validate(); err != nil {
			return err
		}
	}

	return nil
}
