// Package config loads the engine limits from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGuestAccessTTL        = 30 * 24 * time.Hour
	DefaultMaxGuestsPerTask      = 10
	DefaultWorkflowNameMaxLength = 250
	DefaultReactionPreviewLength = 50
	DefaultDateLayout            = "Jan 02, 2006 03:04PM"
	DefaultTimezone              = "UTC"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the engine limits. Zero values fall back to the defaults.
type Config struct {
	GuestAccessTTL        time.Duration `yaml:"guest_access_ttl"`
	MaxGuestsPerTask      int           `yaml:"max_guests_per_task"`
	WorkflowNameMaxLength int           `yaml:"workflow_name_max_length"`
	ReactionPreviewLength int           `yaml:"reaction_preview_length"`
	DateLayout            string        `yaml:"date_layout"`
	Timezone              string        `yaml:"timezone"`
}

func Default() Config {
	var c Config
	c.applyDefaults()

	return c
}

// Load reads the file at path. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var c Config

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Location returns the default timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

func (c *Config) applyDefaults() {
	if c.GuestAccessTTL == 0 {
		c.GuestAccessTTL = DefaultGuestAccessTTL
	}

	if c.MaxGuestsPerTask == 0 {
		c.MaxGuestsPerTask = DefaultMaxGuestsPerTask
	}

	if c.WorkflowNameMaxLength == 0 {
		c.WorkflowNameMaxLength = DefaultWorkflowNameMaxLength
	}

	if c.ReactionPreviewLength == 0 {
		c.ReactionPreviewLength = DefaultReactionPreviewLength
	}

	if c.DateLayout == "" {
		c.DateLayout = DefaultDateLayout
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
}

func (c *Config) validate() error {
	switch {
	case c.GuestAccessTTL < 0:
		return fmt.Errorf("%w: guest_access_ttl must be positive", ErrInvalidConfig)
	case c.MaxGuestsPerTask < 0:
		return fmt.Errorf("%w: max_guests_per_task must be positive", ErrInvalidConfig)
	case c.WorkflowNameMaxLength < 2:
		return fmt.Errorf("%w: workflow_name_max_length must be at least 2", ErrInvalidConfig)
	case c.ReactionPreviewLength < 2:
		return fmt.Errorf("%w: reaction_preview_length must be at least 2", ErrInvalidConfig)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfig, c.Timezone)
	}

	return nil
}
