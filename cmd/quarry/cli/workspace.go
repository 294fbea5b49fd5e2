// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quarry-build/quarry/lib/config"
	"github.com/quarry-build/quarry/lib/fetch"
	"github.com/quarry-build/quarry/lib/installdb"
	"github.com/quarry-build/quarry/lib/signature"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// LoadConfig loads the configuration (honoring the --config flag
// value, the QUARRY_CONFIG variable, and the default path, in that
// order), validates it, and creates the working directories. Every
// command that touches the cache, the install database, or the network
// starts here.
func LoadConfig(flagPath string) (*config.Config, error) {
	cfg, err := config.Load(flagPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenCache opens the source cache at the configured location.
func OpenCache(cfg *config.Config, logger *slog.Logger) (*sourcecache.Store, error) {
	return sourcecache.Open(sourcecache.Config{
		Root:   cfg.Paths.Cache,
		Logger: logger,
	})
}

// OpenDB opens the install database at the configured location. The
// caller owns the returned handle and must Close it.
func OpenDB(cfg *config.Config, logger *slog.Logger) (*installdb.DB, error) {
	return installdb.Open(installdb.Config{
		Path:   cfg.Paths.Database,
		Logger: logger,
	})
}

// NewFetcher builds a download client from the fetch section of the
// configuration.
func NewFetcher(cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	timeout, err := cfg.FetchTimeout()
	if err != nil {
		return nil, err
	}

	// The client treats zero retries as "use the default", so a
	// configured zero maps to the explicit-disable value.
	retries := cfg.Fetch.Retries
	if retries == 0 {
		retries = -1
	}

	return &fetch.Client{
		HTTP:      &http.Client{Timeout: timeout},
		Logger:    logger,
		Retries:   retries,
		UserAgent: cfg.Fetch.UserAgent,
	}, nil
}

// LoadKeyring loads the configured OpenPGP keyring. Returns nil
// without error when no keyring is configured; staging then refuses
// recipes that declare signatures.
func LoadKeyring(cfg *config.Config) (*signature.Keyring, error) {
	if cfg.Fetch.Keyring == "" {
		return nil, nil
	}
	keyring, err := signature.LoadKeyring(cfg.Fetch.Keyring)
	if err != nil {
		return nil, fmt.Errorf("loading keyring %s: %w", cfg.Fetch.Keyring, err)
	}
	return keyring, nil
}
