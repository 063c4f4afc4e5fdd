// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Ignition tools.
//
// Configuration is loaded from a single YAML file specified by the
// IGNITION_CONFIG environment variable or a --config flag. There is
// no automatic discovery; a missing path means defaults. The only
// expansion performed is ${VAR} and ${VAR:-default} in paths.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ignition-foundation/ignition/lib/bootlog"
)

// Config is the master configuration for the Ignition tools.
type Config struct {
	// Transition tunes the boot-to-runtime transition protocol.
	Transition TransitionConfig `yaml:"transition"`

	// Console selects the post-transition console routing.
	Console ConsoleConfig `yaml:"console"`

	// Report configures transition report output.
	Report ReportConfig `yaml:"report"`
}

// TransitionConfig tunes the transition protocol.
type TransitionConfig struct {
	// MapKeyRetries is how many extra snapshot-and-exit attempts
	// follow a stale memory map key. Zero disables retry.
	// Default: 2
	MapKeyRetries int `yaml:"map_key_retries"`
}

// ConsoleConfig selects the post-transition console routing.
type ConsoleConfig struct {
	// Fallback is one of "none" (fail loud), "memory", "discard".
	// Default: memory
	Fallback string `yaml:"fallback"`

	// MemoryLimit bounds the memory fallback sink, in bytes.
	// Default: 65536
	MemoryLimit int `yaml:"memory_limit"`
}

// ReportConfig configures transition report output.
type ReportConfig struct {
	// Path is where the framed report is written. Empty disables
	// report output.
	Path string `yaml:"path"`

	// Compression is the report payload compression: "none", "lz4",
	// or "zstd". Default: zstd
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. Defaults exist so every
// field has a sensible value when no config file is given.
func Default() *Config {
	return &Config{
		Transition: TransitionConfig{MapKeyRetries: 2},
		Console:    ConsoleConfig{Fallback: "memory", MemoryLimit: 64 * 1024},
		Report:     ReportConfig{Compression: "zstd"},
	}
}

// Load loads configuration from the IGNITION_CONFIG environment
// variable, or returns defaults when it is unset.
func Load() (*Config, error) {
	path := os.Getenv("IGNITION_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file, merging over the
// defaults. Environment variables do not override config values; the
// only expansion is ${VAR} patterns in paths.
func LoadFile(path string) (*Config, error) {
	configuration := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, configuration); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	configuration.Report.Path = expandVars(configuration.Report.Path, map[string]string{
		"HOME": os.Getenv("HOME"),
	})
	return configuration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Transition.MapKeyRetries < 0 {
		errs = append(errs, fmt.Errorf("transition.map_key_retries must not be negative"))
	}

	switch c.Console.Fallback {
	case "none", "memory", "discard":
	default:
		errs = append(errs, fmt.Errorf("console.fallback must be one of: none, memory, discard"))
	}
	if c.Console.MemoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("console.memory_limit must be positive"))
	}

	if _, err := bootlog.ParseCompression(c.Report.Compression); err != nil {
		errs = append(errs, fmt.Errorf("report.compression: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
