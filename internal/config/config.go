// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the sensirion program settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GermanBionicSystems/sensirion/transport"
)

// Config is the program configuration.
type Config struct {
	// Bus is the I2C bus name as understood by i2creg; empty picks the first
	// bus.
	Bus     string        `yaml:"bus"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	SEN5x   SEN5xConfig   `yaml:"sen5x"`
}

// RetryConfig is the per measurement retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// LoggingConfig selects the log level, encoding and optional log file.
type LoggingConfig struct {
	Level  string     `yaml:"level"`  // debug, info, warn, error
	Format string     `yaml:"format"` // console or json
	File   FileConfig `yaml:"file"`
}

// FileConfig enables rotated file output when Filename is set.
type FileConfig struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SEN5xConfig holds the SEN5x decoding options.
type SEN5xConfig struct {
	SignedMassConcentration bool `yaml:"signed_mass_concentration"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxAttempts: transport.DefaultPolicy.MaxAttempts,
			Backoff:     transport.DefaultPolicy.Backoff,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   FileConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 30},
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must not be negative, got %s", c.Retry.Backoff)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not console or json", c.Logging.Format)
	}
	return nil
}

// Policy returns the retry policy. onRetry may be nil.
func (c *Config) Policy(onRetry func(attempt int, err error)) transport.Policy {
	return transport.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Backoff:     c.Retry.Backoff,
		OnRetry:     onRetry,
	}
}
