// Package config holds the deployment-time configuration consumed by the
// pipeline: storage substrate, queue, generative model, and worker wiring.
// Configuration is loaded from a YAML file with environment overrides; all of
// it is fixed at deployment, not runtime-negotiated.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Modes select the substrate the pipeline runs on.
const (
	ModeLocal = "local" // filesystem storage, directory watcher, in-process workers
	ModeAWS   = "aws"   // S3 storage, SQS queue, Lambda worker dispatch
)

// Config is the full service configuration.
type Config struct {
	Mode       string           `yaml:"mode"`
	Storage    StorageConfig    `yaml:"storage"`
	Queue      QueueConfig      `yaml:"queue"`
	Generation GenerationConfig `yaml:"generation"`
	Workers    WorkersConfig    `yaml:"workers"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig configures the object storage substrate.
type StorageConfig struct {
	// Root is the local-mode storage directory.
	Root string `yaml:"root"`
	// Bucket is the aws-mode S3 bucket.
	Bucket string `yaml:"bucket"`
}

// QueueConfig configures the brief notification source.
type QueueConfig struct {
	// URL is the aws-mode SQS queue URL. Local mode watches the input
	// prefix under the storage root instead.
	URL string `yaml:"url"`
}

// GenerationConfig configures the generative image backend.
type GenerationConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Stagger string `yaml:"stagger"`
}

// WorkersConfig configures downstream worker identities and local fan-out.
type WorkersConfig struct {
	// GeneratorFunction and VariantsFunction are the aws-mode Lambda names.
	GeneratorFunction string `yaml:"generator_function"`
	VariantsFunction  string `yaml:"variants_function"`
	// Concurrency bounds in-process worker fan-out; zero means unbounded.
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeLocal,
		Storage: StorageConfig{
			Root: "data",
		},
		Generation: GenerationConfig{
			Model:   "imagen-3.0-generate-002",
			Stagger: "3s",
		},
		Workers: WorkersConfig{
			Concurrency: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the file without
// editing it.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADFORGE_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ADFORGE_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("ADFORGE_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("IMAGE_MODEL_ID"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("GENERATOR_FUNCTION"); v != "" {
		c.Workers.GeneratorFunction = v
	}
	if v := os.Getenv("VARIANTS_FUNCTION"); v != "" {
		c.Workers.VariantsFunction = v
	}
	if v := os.Getenv("ADFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that the selected mode has the settings it needs.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if c.Storage.Root == "" {
			return fmt.Errorf("config: storage.root required in local mode")
		}
	case ModeAWS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket required in aws mode")
		}
		if c.Queue.URL == "" {
			return fmt.Errorf("config: queue.url required in aws mode")
		}
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("config: generation.model required")
	}
	return nil
}

// GetStagger returns the per-index stagger delay.
func (c *Config) GetStagger() time.Duration {
	d, err := time.ParseDuration(c.Generation.Stagger)
	if err != nil || d < 0 {
		return 3 * time.Second
	}
	return d
}
