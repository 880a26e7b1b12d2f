// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from a YAML file layered over Default().
// Values the file leaves out keep their defaults, so the compression
// thresholds live in exactly one place (internal/pipes/config.go).
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - pipes.go:      Pipe config re-exports
//   - monitoring.go: Logging, metrics and savings settings
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/pipes"
)

// Defaults for settings outside the pipes package.
const (
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultUpstreamURL     = "https://api.anthropic.com"
	DefaultUpstreamTimeout = 120 * time.Second
	DefaultEngineEndpoint  = "http://127.0.0.1:8765"
	DefaultEngineTimeout   = 60 * time.Second
	DefaultEngineEncoding  = "cl100k_base"
)

// Config is the root configuration for the Lingua Gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Upstream   UpstreamConfig   `yaml:"upstream"`   // Anthropic API target
	Engine     engine.Config    `yaml:"engine"`     // Compression engine
	Pipes      PipesConfig      `yaml:"pipes"`      // Compression pipelines
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging, metrics, savings
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	Host         string        `yaml:"host"`          // Interface to bind
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
	RateLimit    float64       `yaml:"rate_limit"`    // Requests per second per client IP, 0 = off
	RateBurst    int           `yaml:"rate_burst"`    // Burst size for the rate limiter
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// UpstreamConfig describes where requests are forwarded.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. https://api.anthropic.com
	Timeout time.Duration `yaml:"timeout"`  // Connect and response-header timeout
}

// Default returns a configuration that works out of the box against the
// public Anthropic API and a local compression service.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			Host:         DefaultHost,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL: DefaultUpstreamURL,
			Timeout: DefaultUpstreamTimeout,
		},
		Engine: engine.Config{
			Strategy:       engine.StrategyLingua,
			Endpoint:       DefaultEngineEndpoint,
			Model:          engine.DefaultLinguaModel,
			Device:         "auto",
			Timeout:        DefaultEngineTimeout,
			MaxConcurrency: 1,
			Encoding:       DefaultEngineEncoding,
		},
		Pipes: PipesConfig{
			Lingua: pipes.DefaultLinguaConfig(),
		},
		Monitoring: DefaultMonitoring(),
	}
}

// envPattern matches ${VAR:-default} or ${VAR}.
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// An empty path yields Default() with env overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets deployments redirect the gateway without editing
// the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LINGUA_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("LINGUA_ENGINE_ENDPOINT"); v != "" {
		c.Engine.Endpoint = v
	}
	if v := os.Getenv("LINGUA_SAVINGS_DB"); v != "" {
		c.Monitoring.SavingsDB = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0, got %v", c.Server.RateLimit)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream.base_url: %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout is required")
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if err := c.Pipes.Validate(); err != nil {
		return err
	}

	return c.Monitoring.Validate()
}
