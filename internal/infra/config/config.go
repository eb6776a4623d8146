// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Player   PlayerConfig   `yaml:"player"`
	Backends BackendsConfig `yaml:"backends"`
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// PlayerConfig represents the playback agent configuration.
type PlayerConfig struct {
	ChannelName     string `yaml:"channel_name" default:"Content"`
	ChannelPriority int    `yaml:"channel_priority" default:"300" validate:"gt=0"`
}

// BackendsConfig represents the rendering-backend pool configuration. Settings
// are backend-type specific and decoded by the backend constructor.
type BackendsConfig struct {
	Type     string         `yaml:"type" default:"simulated" validate:"required"`
	Count    int            `yaml:"count" default:"2" validate:"gte=1,lte=16"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Run on defaults alone.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("PLAYERD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PLAYERD_BACKEND_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid PLAYERD_BACKEND_COUNT")
		}
		c.Backends.Count = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
