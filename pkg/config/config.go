// Package config loads client configuration from YAML for applications that
// prefer a file over constructing options in code.
package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var validate = validator.New()

// Config describes one node endpoint and the client's timeout profiles.
// Durations are in seconds.
type Config struct {
	NodeURL            string `yaml:"node_url"             validate:"required,url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"      validate:"min=1"`
	SlowTimeoutSeconds int    `yaml:"slow_timeout_seconds" validate:"min=1"`
	ReceiptPollSeconds int    `yaml:"receipt_poll_seconds" validate:"min=1"`
}

func (c Config) Timeout() time.Duration     { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c Config) SlowTimeout() time.Duration { return time.Duration(c.SlowTimeoutSeconds) * time.Second }
func (c Config) ReceiptPoll() time.Duration { return time.Duration(c.ReceiptPollSeconds) * time.Second }

// Defaults mirrors the zero-config behavior of the client constructor.
func Defaults() Config {
	return Config{
		TimeoutSeconds:     10,
		SlowTimeoutSeconds: 200,
		ReceiptPollSeconds: 1,
	}
}

// Load reads a YAML config file, fills unset fields with defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	defaults := Defaults()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
