// Package config loads pool settings from a YAML file with optional .env
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	tp "github.com/Andrej220/go-utils/taskpool"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKPOOL_"

// Config holds the pool configuration.
type Config struct {
	Name             string        `yaml:"name"`
	Workers          int           `yaml:"workers" validate:"gte=0,lte=4096"`
	BatchSize        int           `yaml:"batch_size" validate:"gte=0,lte=1024"`
	PollInterval     time.Duration `yaml:"poll_interval" validate:"gte=0"`
	ThrottleInterval time.Duration `yaml:"throttle_interval" validate:"gte=0"`
	PinWorkers       bool          `yaml:"pin_workers"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	Retry struct {
		MaxRetries  int           `yaml:"max_retries" validate:"gte=0"`
		BackoffBase time.Duration `yaml:"backoff_base" validate:"gte=0"`
		BackoffMax  time.Duration `yaml:"backoff_max" validate:"gte=0"`
		Jitter      bool          `yaml:"jitter"`
	} `yaml:"retry"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace" validate:"omitempty,alphanum"`
	} `yaml:"metrics"`

	HTTP struct {
		Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	} `yaml:"http"`

	Cron []CronEntry `yaml:"cron" validate:"dive"`
}

// CronEntry schedules a periodic task.
type CronEntry struct {
	Spec     string `yaml:"spec" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
	Priority int    `yaml:"priority"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.Name = "taskpool"
	c.Workers = 4
	c.BatchSize = tp.DefaultBatchSize
	c.PollInterval = tp.DefaultPollInterval
	c.ThrottleInterval = tp.DefaultThrottleInterval
	c.ShutdownTimeout = 30 * time.Second
	return c
}

// Load reads path (if not empty) on top of Default, then applies the
// optional .env file and TASKPOOL_* environment variables, and validates
// the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Retry.BackoffMax > 0 && c.Retry.BackoffMax < c.Retry.BackoffBase {
		return errors.New("config: retry.backoff_max must not be below retry.backoff_base")
	}
	return nil
}

// Options converts the configuration into pool options. Hooks, metrics and
// the context are left for the caller.
func (c Config) Options() tp.Options {
	return tp.Options{
		Name:             c.Name,
		BatchSize:        c.BatchSize,
		PollInterval:     c.PollInterval,
		ThrottleInterval: c.ThrottleInterval,
		PinWorkers:       c.PinWorkers,
	}
}

// RetryPolicy returns the default retry policy for submitted tasks.
func (c Config) RetryPolicy() tp.RetryPolicy {
	return tp.RetryPolicy{
		MaxRetries:  c.Retry.MaxRetries,
		BackoffBase: c.Retry.BackoffBase,
		BackoffMax:  c.Retry.BackoffMax,
		Jitter:      c.Retry.Jitter,
	}
}

func (c *Config) applyEnv() error {
	if v := getenv("NAME"); v != "" {
		c.Name = v
	}
	if err := envInt("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := envInt("BATCH_SIZE", &c.BatchSize); err != nil {
		return err
	}
	if err := envInt("MAX_RETRIES", &c.Retry.MaxRetries); err != nil {
		return err
	}
	if err := envDuration("POLL_INTERVAL", &c.PollInterval); err != nil {
		return err
	}
	if err := envDuration("THROTTLE_INTERVAL", &c.ThrottleInterval); err != nil {
		return err
	}
	if err := envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout); err != nil {
		return err
	}
	if err := envDuration("BACKOFF_BASE", &c.Retry.BackoffBase); err != nil {
		return err
	}
	if err := envDuration("BACKOFF_MAX", &c.Retry.BackoffMax); err != nil {
		return err
	}
	if v := getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

func getenv(k string) string {
	return os.Getenv(EnvPrefix + k)
}

func envInt(k string, dst *int) error {
	v := getenv(k)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s%s: %w", EnvPrefix, k, err)
	}
	*dst = n
	return nil
}

func envDuration(k string, dst *time.Duration) error {
	v := getenv(k)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s%s: %w", EnvPrefix, k, err)
	}
	*dst = d
	return nil
}
