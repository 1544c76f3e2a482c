package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/planengine/database"
	"github.com/kbukum/planengine/events"
	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/redis"
)

// Config is the full engine configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging  logger.Config   `yaml:"logging" mapstructure:"logging"`
	Database database.Config `yaml:"database" mapstructure:"database"`
	Redis    redis.Config    `yaml:"redis" mapstructure:"redis"`
	Events   events.Config   `yaml:"events" mapstructure:"events"`
	Cleanup  CleanupConfig   `yaml:"cleanup" mapstructure:"cleanup"`
	Metrics  MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// CleanupConfig controls retention of finished plan executions.
type CleanupConfig struct {
	// Enabled controls whether the retention sweeper runs.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// RetentionTTL is how long finished executions are kept (e.g. "720h").
	RetentionTTL string `yaml:"retention_ttl" mapstructure:"retention_ttl"`

	// SweepInterval is how often expired executions are collected.
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval"`

	// RetainDetails keeps dependent detail records when executions are
	// deleted, instead of cascading the delete to them.
	RetainDetails bool `yaml:"retain_details" mapstructure:"retain_details"`
}

// MetricsConfig controls the active-count gauge publisher.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// PublishInterval is how often per-account gauges are recorded.
	PublishInterval string `yaml:"publish_interval" mapstructure:"publish_interval"`
}

// ApplyDefaults sets sensible defaults across all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "planengine"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	if c.Database.DSN == "" {
		c.Database.DSN = "file:planengine.db?cache=shared"
	}
	c.Database.ApplyDefaults()
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	c.Redis.ApplyDefaults()
	c.Events.ApplyDefaults()
	c.Cleanup.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// ApplyDefaults sets retention defaults.
func (c *CleanupConfig) ApplyDefaults() {
	if c.RetentionTTL == "" {
		c.RetentionTTL = "720h" // 30 days
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1h"
	}
}

// ApplyDefaults sets metrics defaults.
func (c *MetricsConfig) ApplyDefaults() {
	if c.PublishInterval == "" {
		c.PublishInterval = "45s"
	}
}

// Validate checks the whole configuration: struct tags first, then each
// section's own rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("config.database: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("config.events: %w", err)
	}
	if err := c.Cleanup.Validate(); err != nil {
		return fmt.Errorf("config.cleanup: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("config.metrics: %w", err)
	}
	return nil
}

// Validate checks retention durations.
func (c *CleanupConfig) Validate() error {
	for name, d := range map[string]string{
		"retention_ttl":  c.RetentionTTL,
		"sweep_interval": c.SweepInterval,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	return nil
}

// Validate checks the publish interval.
func (c *MetricsConfig) Validate() error {
	if _, err := time.ParseDuration(c.PublishInterval); err != nil {
		return fmt.Errorf("invalid publish_interval %q: %w", c.PublishInterval, err)
	}
	return nil
}

// RetentionTTLDuration returns the parsed retention TTL.
func (c *CleanupConfig) RetentionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetentionTTL)
	return d
}

// SweepIntervalDuration returns the parsed sweep interval.
func (c *CleanupConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// PublishIntervalDuration returns the parsed publish interval.
func (c *MetricsConfig) PublishIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PublishInterval)
	return d
}
