// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/clock"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testStore(t *testing.T, clk clock.Clock) *sourcecache.Store {
	t.Helper()
	store, err := sourcecache.Open(sourcecache.Config{
		Root:   t.TempDir(),
		Clock:  clk,
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return store
}

func mustHash(t *testing.T, hexString string) sourcecache.Hash {
	t.Helper()
	hash, err := sourcecache.ParseHash(hexString)
	if err != nil {
		t.Fatalf("parsing hash: %v", err)
	}
	return hash
}

func TestPrintEntries_Table(t *testing.T) {
	entries := []sourcecache.Entry{
		{
			Hash: mustHash(t, strings.Repeat("ab", 32)),
			Meta: sourcecache.Meta{
				URL:         "https://example.com/demo-1.0.tar.gz",
				Size:        2048,
				StoredAt:    time.Now().Add(-3 * time.Hour),
				Compression: "zstd",
			},
			StoredSize: 512,
		},
		{
			Hash: mustHash(t, strings.Repeat("cd", 32)),
			Meta: sourcecache.Meta{Size: 64, StoredAt: time.Now()},
		},
	}

	var buf bytes.Buffer
	if err := printEntries(&buf, entries, false); err != nil {
		t.Fatalf("printEntries: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"REF", "SIZE", "AGE", "URL",
		"src-abababababab", "2.0 KiB", "3 hours ago", "https://example.com/demo-1.0.tar.gz",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	// The entry without an origin URL shows a placeholder.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "src-cdcdcdcdcdcd") && !strings.HasSuffix(strings.TrimRight(line, " "), "-") {
			t.Errorf("missing URL placeholder: %q", line)
		}
	}
	if strings.Contains(out, strings.Repeat("ab", 32)) {
		t.Errorf("short listing should not show full hashes:\n%s", out)
	}
}

func TestPrintEntries_Long(t *testing.T) {
	entries := []sourcecache.Entry{
		{
			Hash: mustHash(t, strings.Repeat("ab", 32)),
			Meta: sourcecache.Meta{
				URL:         "https://example.com/demo-1.0.tar.gz",
				Size:        2048,
				StoredAt:    time.Now(),
				Compression: "zstd",
			},
			StoredSize: 512,
		},
	}

	var buf bytes.Buffer
	if err := printEntries(&buf, entries, true); err != nil {
		t.Fatalf("printEntries: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"HASH", "CODEC", strings.Repeat("ab", 32), "zstd", "512 B"} {
		if !strings.Contains(out, want) {
			t.Errorf("long listing missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printEntries(&buf, nil, false); err != nil {
		t.Fatalf("printEntries: %v", err)
	}
	if got := buf.String(); got != "source cache is empty\n" {
		t.Errorf("empty listing = %q", got)
	}
}

func TestVerifyStore_Sound(t *testing.T) {
	store := testStore(t, nil)
	for _, content := range []string{"first source", "second source"} {
		if _, err := store.Put([]byte(content), sourcecache.Meta{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := verifyStore(&buf, store, testLogger()); err != nil {
		t.Fatalf("verifyStore: %v", err)
	}
	if got := buf.String(); got != "ok: 2 sources verified\n" {
		t.Errorf("output = %q", got)
	}
}

func TestVerifyStore_ReportsMissingBlob(t *testing.T) {
	root := t.TempDir()
	store, err := sourcecache.Open(sourcecache.Config{Root: root, Logger: testLogger()})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if _, err := store.Put([]byte("doomed source"), sourcecache.Meta{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Delete the data file but leave the sidecar behind.
	err = filepath.WalkDir(filepath.Join(root, "blobs"), func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || strings.HasSuffix(entry.Name(), ".meta") {
			return err
		}
		return os.Remove(path)
	})
	if err != nil {
		t.Fatalf("removing blob: %v", err)
	}

	var buf bytes.Buffer
	err = verifyStore(&buf, store, testLogger())

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(buf.String(), "has a sidecar but no data") {
		t.Errorf("corruption not reported:\n%s", buf.String())
	}
}

func TestPruneStore(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.Fake(start)
	store := testStore(t, clk)

	oldHash, err := store.Put([]byte("old source"), sourcecache.Meta{})
	if err != nil {
		t.Fatalf("put old: %v", err)
	}
	clk.Advance(100 * time.Hour)
	newHash, err := store.Put([]byte("new source"), sourcecache.Meta{})
	if err != nil {
		t.Fatalf("put new: %v", err)
	}

	var buf bytes.Buffer
	if err := pruneStore(&buf, store, start.Add(50*time.Hour), testLogger()); err != nil {
		t.Fatalf("pruneStore: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "pruned "+sourcecache.FormatRef(oldHash)) {
		t.Errorf("old entry not reported pruned:\n%s", out)
	}
	if strings.Contains(out, sourcecache.FormatRef(newHash)) {
		t.Errorf("new entry pruned:\n%s", out)
	}
	if !strings.Contains(out, "1 removed") {
		t.Errorf("summary missing:\n%s", out)
	}
	if store.Has(oldHash) {
		t.Error("old entry still cached")
	}
	if !store.Has(newHash) {
		t.Error("new entry evicted")
	}
}

func TestPruneStore_NothingToPrune(t *testing.T) {
	store := testStore(t, nil)
	if _, err := store.Put([]byte("fresh source"), sourcecache.Meta{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var buf bytes.Buffer
	if err := pruneStore(&buf, store, time.Now().Add(-24*time.Hour), testLogger()); err != nil {
		t.Fatalf("pruneStore: %v", err)
	}
	if got := buf.String(); got != "nothing to prune\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPruneCommand_RequiresCutoff(t *testing.T) {
	err := Command().Execute(context.Background(), []string{"prune"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "--older-than is required") {
		t.Errorf("expected missing-cutoff error, got %v", err)
	}
}

func TestPruneCommand_RejectsBadDuration(t *testing.T) {
	err := Command().Execute(context.Background(),
		[]string{"prune", "--older-than", "fortnight"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "invalid --older-than duration") {
		t.Errorf("expected duration error, got %v", err)
	}
}

func TestCommand_ListAndVerifySeededCache(t *testing.T) {
	root := t.TempDir()
	cachePath := filepath.Join(root, "cache")
	configPath := filepath.Join(root, "config.yaml")
	configText := fmt.Sprintf("paths:\n  root: %s\n  cache: %s\n  stages: %s\n  database: %s\n",
		root, cachePath, filepath.Join(root, "stages"), filepath.Join(root, "installs.db"))
	if err := os.WriteFile(configPath, []byte(configText), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	store, err := sourcecache.Open(sourcecache.Config{Root: cachePath, Logger: testLogger()})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if _, err := store.Put([]byte("seeded source"), sourcecache.Meta{URL: "https://example.com/s.tar"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx := context.Background()
	if err := Command().Execute(ctx, []string{"list", "--config", configPath}, testLogger()); err != nil {
		t.Errorf("cache list: %v", err)
	}
	if err := Command().Execute(ctx, []string{"verify", "--config", configPath}, testLogger()); err != nil {
		t.Errorf("cache verify: %v", err)
	}
}
