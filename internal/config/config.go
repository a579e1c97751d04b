package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "TRANSCRIPTOR"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST" validate:"required"`
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`

	// AllowedOrigins lists CORS origins for the local web UI. Empty allows
	// any origin.
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`

	// DevMode adds stack traces to 5xx problem responses and exposes the raw
	// fingerprint components route.
	DevMode bool `yaml:"dev_mode" envconfig:"DEV_MODE"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// LicenseConfig describes where the license lives and how it is verified.
type LicenseConfig struct {
	// File is the installed license file. Relative paths resolve against the
	// per-user config directory.
	File string `yaml:"file" envconfig:"FILE" validate:"required"`

	// PublicKeyPath and PublicKey are alternative ways to supply the issuer's
	// verification key. Inline PEM takes precedence.
	PublicKeyPath string `yaml:"public_key_path" envconfig:"PUBLIC_KEY_PATH"`
	PublicKey     string `yaml:"public_key" envconfig:"PUBLIC_KEY"`

	Algorithms []string `yaml:"algorithms" envconfig:"ALGORITHMS" validate:"min=1,dive,oneof=RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512 EdDSA"`

	// LegacySecret enables shared-secret licenses. LegacyProduct, when set,
	// rejects legacy licenses issued for another product.
	LegacySecret   string   `yaml:"legacy_secret" envconfig:"LEGACY_SECRET"`
	LegacyProduct  string   `yaml:"legacy_product" envconfig:"LEGACY_PRODUCT"`
	LegacyFeatures []string `yaml:"legacy_features" envconfig:"LEGACY_FEATURES"`

	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" validate:"gte=0"`
}

// HasPublicKey reports whether any verification key was configured.
func (l LicenseConfig) HasPublicKey() bool {
	return strings.TrimSpace(l.PublicKey) != "" || strings.TrimSpace(l.PublicKeyPath) != ""
}

// TelemetryConfig toggles OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	ServiceVersion string `yaml:"service_version" envconfig:"SERVICE_VERSION"`
	TraceStdout    bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	Metrics        bool   `yaml:"metrics" envconfig:"METRICS"`
}

// Load loads configuration from defaults, the optional YAML file and the
// environment, in that order.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// No default tags on the struct: unset variables leave the
	// defaults and file values untouched.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.License.Algorithms = normalizeList(cfg.License.Algorithms)
	cfg.License.LegacyFeatures = normalizeList(cfg.License.LegacyFeatures)
	cfg.Security.AllowedOrigins = normalizeList(cfg.Security.AllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values on cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// validate validates the configuration
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file_path is required for output %q", c.Logging.Output)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 10,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
			AllowedOrigins: []string{"http://127.0.0.1:8765", "http://localhost:8765"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/transcriptor.log",
		},
		License: LicenseConfig{
			File:       "license.json",
			Algorithms: []string{"RS256", "ES256"},
			LegacyFeatures: []string{
				"summary:extractive",
				"summary:redacted",
				"export:markdown",
				"export:json",
				"export:docx",
			},
			CacheTTL: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "transcriptor",
			ServiceVersion: "dev",
			Metrics:        true,
		},
	}
}
