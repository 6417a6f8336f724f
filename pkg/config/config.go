// Package config provides configuration structures and loading logic for the
// report service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// GenerationConfig holds the text-generation backend settings.
type GenerationConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	DefaultTemperature float64       `yaml:"default_temperature"`
}

// PipelineConfig holds pipeline execution settings.
type PipelineConfig struct {
	// File optionally points at a YAML pipeline definition; when empty the
	// built-in pipeline is used.
	File string `yaml:"file"`

	// JobTimeout bounds one job's full run.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// MaxConcurrentStages caps parallel stages per job in hierarchical mode.
	MaxConcurrentStages int `yaml:"max_concurrent_stages"`

	// MaxConcurrentJobs caps pipelines executing at once across jobs;
	// zero means unlimited.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

// TelemetryConfig holds configuration for OpenTelemetry trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is configured at startup
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4o",
			RequestTimeout:     2 * time.Minute,
			DefaultTemperature: 0.7,
		},
		Pipeline: PipelineConfig{
			JobTimeout:          10 * time.Minute,
			MaxConcurrentStages: 4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPORTFORGE_LISTEN_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("REPORTFORGE_GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("REPORTFORGE_GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("REPORTFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REPORTFORGE_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("REPORTFORGE_MAX_CONCURRENT_STAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrentStages = n
		}
	}
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("generation.base_url must not be empty")
	}
	if c.Generation.DefaultTemperature < 0 || c.Generation.DefaultTemperature > 2 {
		return fmt.Errorf("generation.default_temperature must be in [0, 2], got %g", c.Generation.DefaultTemperature)
	}
	if c.Pipeline.JobTimeout <= 0 {
		return fmt.Errorf("pipeline.job_timeout must be positive")
	}
	if c.Pipeline.MaxConcurrentStages < 1 {
		return fmt.Errorf("pipeline.max_concurrent_stages must be at least 1")
	}
	if c.Pipeline.MaxConcurrentJobs < 0 {
		return fmt.Errorf("pipeline.max_concurrent_jobs must not be negative")
	}
	return nil
}
