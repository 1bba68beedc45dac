// Package config loads settings for the sealdrop command.
//
// Sources are applied in order, later ones overriding earlier ones:
// built-in defaults, a YAML file, a .env file, then SEALDROP_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the command reads.
const EnvPrefix = "SEALDROP_"

// Config contains command configuration.
type Config struct {
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Email    string `yaml:"email" env:"EMAIL"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Password is read from the environment only, never from a file.
	Password string `yaml:"-" env:"PASSWORD"`

	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Retries  int           `yaml:"retries" env:"RETRIES"`
	Delivery Delivery      `yaml:"delivery" envPrefix:"DELIVERY_"`
	KDF      KDF           `yaml:"kdf" envPrefix:"KDF_"`
}

// Delivery selects how the watch command receives messages.
type Delivery struct {
	Strategy        string        `yaml:"strategy" env:"STRATEGY"`
	PollingInterval time.Duration `yaml:"polling_interval" env:"POLLING_INTERVAL"`
}

// KDF holds Argon2id cost parameters. Every device of one user must use the
// same values.
type KDF struct {
	Time        uint32 `yaml:"time" env:"TIME"`
	MemoryKiB   uint32 `yaml:"memory_kib" env:"MEMORY_KIB"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM"`
}

// Default returns the built-in configuration. Zero KDF fields mean the SDK
// defaults.
func Default() Config {
	return Config{
		BaseURL:  "http://localhost:8000",
		LogLevel: "warn",
		Timeout:  30 * time.Second,
		Retries:  3,
		Delivery: Delivery{
			Strategy:        "auto",
			PollingInterval: 2 * time.Second,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sealdrop", "config.yaml")
}

// Options controls where Load looks.
type Options struct {
	// Path is an explicit YAML file. A missing explicit file is an error;
	// a missing DefaultPath is not.
	Path string
	// DotEnv is the .env file to load. Empty means ".env" in the working
	// directory. Missing files are ignored.
	DotEnv string
	// Environment replaces the process environment, mainly for tests.
	Environment map[string]string
}

// Load builds the configuration from all sources.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	} else {
		dotenv := opts.DotEnv
		if dotenv == "" {
			dotenv = ".env"
		}
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: must be an http or https URL", c.BaseURL)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Delivery.Strategy {
	case "auto", "websocket", "polling":
	default:
		return fmt.Errorf("invalid delivery strategy %q", c.Delivery.Strategy)
	}
	if c.Timeout < 0 || c.Retries < 0 || c.Delivery.PollingInterval < 0 {
		return errors.New("negative durations and retry counts are not allowed")
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
