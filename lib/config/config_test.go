// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
	if cfg.Paths.Root == "" {
		t.Error("default root is empty")
	}
	if !strings.HasPrefix(cfg.Paths.Cache, cfg.Paths.Root) {
		t.Errorf("default cache %s is not under the root %s", cfg.Paths.Cache, cfg.Paths.Root)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
paths:
  root: /srv/quarry
  cache: /var/cache/quarry
fetch:
  jobs: 8
  timeout: 90s
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/srv/quarry" {
		t.Errorf("root = %q, want /srv/quarry", cfg.Paths.Root)
	}
	if cfg.Paths.Cache != "/var/cache/quarry" {
		t.Errorf("cache = %q, want /var/cache/quarry", cfg.Paths.Cache)
	}
	if cfg.Fetch.Jobs != 8 {
		t.Errorf("jobs = %d, want 8", cfg.Fetch.Jobs)
	}
	if cfg.Fetch.Timeout != "90s" {
		t.Errorf("timeout = %q, want 90s", cfg.Fetch.Timeout)
	}

	// Unset fields keep their defaults.
	if cfg.Fetch.Retries != 2 {
		t.Errorf("retries = %d, want the default 2", cfg.Fetch.Retries)
	}
	if cfg.Patch.Strip != 1 {
		t.Errorf("strip = %d, want the default 1", cfg.Patch.Strip)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
fetch:
  paralellism: 3
`)
	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("LoadFile accepted an unknown key")
	}
	if !strings.Contains(err.Error(), "paralellism") {
		t.Errorf("error = %q, want it to name the unknown key", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}

func TestLoadFileEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile of an empty file failed: %v", err)
	}
	if cfg.Fetch.Jobs != Default().Fetch.Jobs {
		t.Error("empty file did not yield defaults")
	}
}

func TestExpansion(t *testing.T) {
	t.Setenv("QUARRY_TEST_DATA", "/data/quarry")

	path := writeConfig(t, `
paths:
  root: ${QUARRY_TEST_DATA}/root
  cache: ${QUARRY_TEST_UNSET:-/fallback}/cache
  stages: ${QUARRY_TEST_UNSET}/stages
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/data/quarry/root" {
		t.Errorf("root = %q, want the expanded variable", cfg.Paths.Root)
	}
	if cfg.Paths.Cache != "/fallback/cache" {
		t.Errorf("cache = %q, want the fallback default", cfg.Paths.Cache)
	}
	if cfg.Paths.Stages != "/stages" {
		t.Errorf("stages = %q, want the unset variable to vanish", cfg.Paths.Stages)
	}
}

func TestLoadSearchOrder(t *testing.T) {
	flagFile := writeConfig(t, "paths:\n  root: /from-flag\n")
	envFile := writeConfig(t, "paths:\n  root: /from-env\n")

	t.Setenv(EnvVar, envFile)
	cfg, err := Load(flagFile)
	if err != nil {
		t.Fatalf("Load with flag failed: %v", err)
	}
	if cfg.Paths.Root != "/from-flag" {
		t.Errorf("root = %q, want the flag file to win over the environment", cfg.Paths.Root)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load from environment failed: %v", err)
	}
	if cfg.Paths.Root != "/from-env" {
		t.Errorf("root = %q, want the environment file", cfg.Paths.Root)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load with a missing explicit file succeeded")
	}

	t.Setenv(EnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(""); err == nil {
		t.Error("Load with a missing QUARRY_CONFIG file succeeded")
	}

	// With nothing set and no default file, Load returns the
	// defaults.
	t.Setenv(EnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load without any config failed: %v", err)
	}
	if cfg.Fetch.Jobs != Default().Fetch.Jobs {
		t.Error("Load without any config did not yield defaults")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		mutate        func(*Config)
		wantSubstring string
	}{
		{
			name:          "empty root",
			mutate:        func(c *Config) { c.Paths.Root = "" },
			wantSubstring: "paths.root is required",
		},
		{
			name:          "empty database",
			mutate:        func(c *Config) { c.Paths.Database = "" },
			wantSubstring: "paths.database is required",
		},
		{
			name:          "malformed timeout",
			mutate:        func(c *Config) { c.Fetch.Timeout = "banana" },
			wantSubstring: "fetch.timeout",
		},
		{
			name:          "zero timeout",
			mutate:        func(c *Config) { c.Fetch.Timeout = "0s" },
			wantSubstring: "must be positive",
		},
		{
			name:          "negative retries",
			mutate:        func(c *Config) { c.Fetch.Retries = -1 },
			wantSubstring: "fetch.retries",
		},
		{
			name:          "zero jobs",
			mutate:        func(c *Config) { c.Fetch.Jobs = 0 },
			wantSubstring: "fetch.jobs",
		},
		{
			name:          "negative strip",
			mutate:        func(c *Config) { c.Patch.Strip = -2 },
			wantSubstring: "patch.strip",
		},
		{
			name:          "negative fuzz",
			mutate:        func(c *Config) { c.Patch.Fuzz = -1 },
			wantSubstring: "patch.fuzz",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			testCase.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), testCase.wantSubstring) {
				t.Errorf("error = %q, want substring %q", err, testCase.wantSubstring)
			}
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Fetch.Jobs = 0
	cfg.Patch.Strip = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"fetch.jobs", "patch.strip"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q is missing %q", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "quarry")
	cfg := &Config{
		Paths: PathsConfig{
			Root:     root,
			Cache:    filepath.Join(root, "cache"),
			Stages:   filepath.Join(root, "stages"),
			Database: filepath.Join(root, "db", "installs.db"),
		},
	}

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, dir := range []string{
		root,
		filepath.Join(root, "cache"),
		filepath.Join(root, "stages"),
		filepath.Join(root, "db"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("%s missing: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if perm := info.Mode().Perm(); perm != 0o700 {
			t.Errorf("%s has mode %o, want 0700", dir, perm)
		}
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Fetch.Timeout = "90s"
	timeout, err := cfg.FetchTimeout()
	if err != nil {
		t.Fatalf("FetchTimeout failed: %v", err)
	}
	if timeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", timeout)
	}

	cfg.Fetch.Timeout = "soon"
	if _, err := cfg.FetchTimeout(); err == nil {
		t.Error("FetchTimeout parsed a malformed duration")
	}
}
