// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	libfetch "github.com/quarry-build/quarry/lib/fetch"
	librecipe "github.com/quarry-build/quarry/lib/recipe"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testStore(t *testing.T) *sourcecache.Store {
	t.Helper()
	store, err := sourcecache.Open(sourcecache.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	return store
}

func TestFetchResources(t *testing.T) {
	archive := []byte("mercury source tree\n")
	digest := libfetch.SHA256Hex(archive)

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(archive)
	}))
	defer server.Close()

	store := testStore(t)
	fetcher := &libfetch.Client{HTTP: server.Client()}
	resources := []libfetch.Resource{
		{URL: server.URL + "/mercury-1.0.1.tar.bz2", SHA256: digest},
	}

	var first bytes.Buffer
	if err := fetchResources(context.Background(), &first, store, fetcher, resources, 2, testLogger()); err != nil {
		t.Fatalf("fetchResources: %v", err)
	}
	if !strings.HasPrefix(first.String(), "fetched src-") {
		t.Errorf("first run output = %q, want a fetched line", first.String())
	}
	if !strings.Contains(first.String(), "mercury-1.0.1.tar.bz2") {
		t.Errorf("first run output missing url:\n%s", first.String())
	}

	if _, found, err := store.FindBySHA256(digest); err != nil || !found {
		t.Fatalf("archive not cached after fetch: found=%v err=%v", found, err)
	}

	// A second run hits the cache and never touches the network.
	var second bytes.Buffer
	if err := fetchResources(context.Background(), &second, store, fetcher, resources, 2, testLogger()); err != nil {
		t.Fatalf("fetchResources (cached): %v", err)
	}
	if !strings.HasPrefix(second.String(), "cached  src-") {
		t.Errorf("second run output = %q, want a cached line", second.String())
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetchResources_ChecksumMismatch(t *testing.T) {
	served := []byte("tampered content")
	declared := libfetch.SHA256Hex([]byte("original content"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(served)
	}))
	defer server.Close()

	store := testStore(t)
	fetcher := &libfetch.Client{HTTP: server.Client()}
	resources := []libfetch.Resource{
		{URL: server.URL + "/evil.tar.gz", SHA256: declared},
	}

	var buffer bytes.Buffer
	err := fetchResources(context.Background(), &buffer, store, fetcher, resources, 1, testLogger())
	if err == nil || !strings.Contains(err.Error(), "sha256 mismatch") {
		t.Fatalf("expected checksum mismatch error, got %v", err)
	}

	// Unverified content must never enter the cache.
	entries, err := store.List()
	if err != nil {
		t.Fatalf("listing cache: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache has %d entries after failed fetch, want 0", len(entries))
	}
}

func TestReleaseResources(t *testing.T) {
	r := &librecipe.Recipe{
		Name: "demo",
		Versions: []librecipe.Version{
			{
				Version: "1.2.0",
				URL:     "https://example.com/demo-${version}.tar.gz",
				SHA256:  strings.Repeat("ab", 32),
			},
		},
		Patches: []librecipe.PatchEntry{
			{File: "patches/local.patch"},
			{URL: "https://example.com/fix.patch", SHA256: strings.Repeat("cd", 32)},
			{URL: "https://example.com/old-only.patch", SHA256: strings.Repeat("ef", 32), When: ":1.1"},
		},
	}

	resources, err := releaseResources(r, &r.Versions[0])
	if err != nil {
		t.Fatalf("releaseResources: %v", err)
	}

	// The source archive plus the one applicable url patch. The local
	// file patch needs no fetch, and the constrained patch does not
	// apply to 1.2.0.
	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2: %+v", len(resources), resources)
	}
	if resources[0].URL != "https://example.com/demo-1.2.0.tar.gz" {
		t.Errorf("source url = %q, want expanded version", resources[0].URL)
	}
	if resources[1].URL != "https://example.com/fix.patch" {
		t.Errorf("patch url = %q", resources[1].URL)
	}
}

func TestSelectRelease(t *testing.T) {
	r := &librecipe.Recipe{
		Name: "demo",
		Versions: []librecipe.Version{
			{Version: "1.0.0"},
			{Version: "1.2.0"},
		},
	}

	release, err := selectRelease(r, "")
	if err != nil {
		t.Fatalf("selectRelease latest: %v", err)
	}
	if release.Version != "1.2.0" {
		t.Errorf("latest = %q, want 1.2.0", release.Version)
	}

	release, err = selectRelease(r, "1.0.0")
	if err != nil {
		t.Fatalf("selectRelease explicit: %v", err)
	}
	if release.Version != "1.0.0" {
		t.Errorf("explicit = %q, want 1.0.0", release.Version)
	}

	if _, err := selectRelease(r, "9.9"); err == nil || !strings.Contains(err.Error(), `has no version "9.9"`) {
		t.Errorf("expected unknown version error, got %v", err)
	}

	empty := &librecipe.Recipe{Name: "empty"}
	if _, err := selectRelease(empty, ""); err == nil || !strings.Contains(err.Error(), "declares no versions") {
		t.Errorf("expected no-versions error, got %v", err)
	}
}

func TestCommand_FillsCache(t *testing.T) {
	archive := []byte("demo source\n")
	digest := libfetch.SHA256Hex(archive)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	recipePath := filepath.Join(dir, "demo.jsonc")
	recipeText := fmt.Sprintf(`{
  "name": "demo",
  "versions": [
    {"version": "1.0.0", "url": "%s/demo-${version}.tar.gz", "sha256": "%s"},
  ],
}`, server.URL, digest)
	if err := os.WriteFile(recipePath, []byte(recipeText), 0o644); err != nil {
		t.Fatal(err)
	}

	cacheDir := filepath.Join(dir, "cache")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgText := fmt.Sprintf("paths:\n  root: %s\n  cache: %s\n  stages: %s\n  database: %s\n",
		dir, cacheDir, filepath.Join(dir, "stages"), filepath.Join(dir, "installs.db"))
	if err := os.WriteFile(cfgPath, []byte(cfgText), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Command().Execute(context.Background(),
		[]string{"--config", cfgPath, recipePath}, testLogger())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	store, err := sourcecache.Open(sourcecache.Config{Root: cacheDir})
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	if _, found, err := store.FindBySHA256(digest); err != nil || !found {
		t.Errorf("archive not in cache: found=%v err=%v", found, err)
	}
}

func TestCommand_RequiresRecipeArgument(t *testing.T) {
	err := Command().Execute(context.Background(), nil, testLogger())
	if err == nil || !strings.Contains(err.Error(), "expected exactly one recipe file") {
		t.Errorf("expected missing-argument error, got %v", err)
	}
}
