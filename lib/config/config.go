// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads quarry's YAML configuration file.
//
// One file configures everything. Lookup order: an explicit --config
// path, the QUARRY_CONFIG environment variable, then the default
// location under the user config directory (~/.config/quarry/
// config.yaml on Linux). An explicitly named file must exist; a
// missing default file just yields the built-in defaults, so a fresh
// machine works without any setup.
//
// ${VAR} and ${VAR:-default} references are expanded against the
// process environment before the YAML is decoded, and decoding is
// strict: a misspelled key is an error, not silently ignored.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that points at the
// configuration file when no --config flag is given.
const EnvVar = "QUARRY_CONFIG"

// Config is quarry's configuration.
type Config struct {
	// Paths locates quarry's on-disk state.
	Paths PathsConfig `yaml:"paths"`

	// Fetch tunes downloads.
	Fetch FetchConfig `yaml:"fetch"`

	// Patch sets defaults for standalone patch application.
	Patch PatchConfig `yaml:"patch"`
}

// PathsConfig locates quarry's on-disk state.
type PathsConfig struct {
	// Root is the base data directory. The other paths default to
	// locations under it.
	Root string `yaml:"root"`

	// Cache is the source cache directory.
	Cache string `yaml:"cache"`

	// Stages is the directory stage trees are created under.
	Stages string `yaml:"stages"`

	// Database is the install database file.
	Database string `yaml:"database"`
}

// FetchConfig tunes downloads.
type FetchConfig struct {
	// Timeout bounds a single download including retry backoff, as a
	// Go duration string ("90s", "5m").
	Timeout string `yaml:"timeout"`

	// Retries is the number of additional attempts after a failed
	// first try.
	Retries int `yaml:"retries"`

	// Jobs is the default download parallelism for batch fetches.
	Jobs int `yaml:"jobs"`

	// UserAgent is sent with every request. Empty uses the built-in
	// default.
	UserAgent string `yaml:"user_agent"`

	// Keyring is a PGP public keyring file for release signature
	// checks. Empty means no keyring; recipes that declare signatures
	// then fail to stage.
	Keyring string `yaml:"keyring"`
}

// PatchConfig sets defaults for the standalone patch commands. Recipes
// carry their own strip levels; these apply when a patch is used
// outside a recipe.
type PatchConfig struct {
	// Strip is the default path-prefix strip level.
	Strip int `yaml:"strip"`

	// Fuzz is the maximum number of context lines a hunk may ignore
	// to find its position.
	Fuzz int `yaml:"fuzz"`
}

// Default returns the built-in configuration: data under the user's
// home, conservative fetch settings, patch -p1 with no fuzz.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "quarry")

	return &Config{
		Paths: PathsConfig{
			Root:     root,
			Cache:    filepath.Join(root, "cache"),
			Stages:   filepath.Join(root, "stages"),
			Database: filepath.Join(root, "installs.db"),
		},
		Fetch: FetchConfig{
			Timeout: "5m",
			Retries: 2,
			Jobs:    4,
		},
		Patch: PatchConfig{
			Strip: 1,
			Fuzz:  0,
		},
	}
}

// DefaultPath returns the default configuration file location,
// honoring the platform's user config directory convention.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "quarry", "config.yaml")
}

// Load resolves and loads the configuration. flagPath is the --config
// value; empty falls back to QUARRY_CONFIG, then the default path. A
// file named by flag or environment must exist. A missing default
// file returns Default().
func Load(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if envPath := os.Getenv(EnvVar); envPath != "" {
		return LoadFile(envPath)
	}

	defaultPath := DefaultPath()
	if defaultPath == "" {
		return Default(), nil
	}
	if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFile(defaultPath)
}

// LoadFile loads the configuration file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := cfg.decode(expandVars(data)); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decode strictly unmarshals YAML over the current values. Unknown
// keys are errors.
func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty file configures nothing.
			return nil
		}
		return err
	}
	return nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandVars substitutes environment variables into the raw file
// before decoding. An unset variable without a default expands to the
// empty string.
func expandVars(data []byte) []byte {
	return varPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := varPattern.FindSubmatch(match)
		name := string(parts[1])
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return []byte(value)
		}
		return parts[2]
	})
}

// FetchTimeout parses the configured download timeout.
func (c *Config) FetchTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0, fmt.Errorf("fetch.timeout: %w", err)
	}
	return timeout, nil
}

// Validate checks the configuration and returns every problem found,
// joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, fmt.Errorf("paths.database is required"))
	}

	if timeout, err := c.FetchTimeout(); err != nil {
		errs = append(errs, err)
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.Retries < 0 {
		errs = append(errs, fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries))
	}
	if c.Fetch.Jobs < 1 {
		errs = append(errs, fmt.Errorf("fetch.jobs must be at least 1, got %d", c.Fetch.Jobs))
	}

	if c.Patch.Strip < 0 {
		errs = append(errs, fmt.Errorf("patch.strip must not be negative, got %d", c.Patch.Strip))
	}
	if c.Patch.Fuzz < 0 {
		errs = append(errs, fmt.Errorf("patch.fuzz must not be negative, got %d", c.Patch.Fuzz))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories. Quarry state is
// private to the user.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Cache,
		c.Paths.Stages,
		filepath.Dir(c.Paths.Database),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
