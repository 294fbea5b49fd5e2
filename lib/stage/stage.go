// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stage turns a recipe into a patched source tree on disk.
//
// Prepare drives the full pipeline for one package version: fetch the
// release archive through the source cache, verify its checksum and
// optional signature, unpack it into a fresh stage directory, apply
// the recipe's patches in order, and record the outcome in the install
// database. A stage whose patches fail is left on disk and marked
// failed so the tree can be inspected; Remove and Restage clean up or
// redo it.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-build/quarry/lib/clock"
	"github.com/quarry-build/quarry/lib/codec"
	"github.com/quarry-build/quarry/lib/fetch"
	"github.com/quarry-build/quarry/lib/installdb"
	"github.com/quarry-build/quarry/lib/patch"
	"github.com/quarry-build/quarry/lib/recipe"
	"github.com/quarry-build/quarry/lib/signature"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// ManifestName is the manifest file written at the root of every stage
// directory.
const ManifestName = ".quarry-stage.cbor"

// Manifest records how a stage directory was produced. It is written
// as deterministic CBOR next to the unpacked tree, so a stage remains
// self-describing without the install database.
type Manifest struct {
	Package    string           `cbor:"package"`
	Version    string           `cbor:"version"`
	SourceURL  string           `cbor:"source_url"`
	SourceHash sourcecache.Hash `cbor:"source_hash"`
	Patches    []ManifestPatch  `cbor:"patches,omitempty"`
	StagedAt   time.Time        `cbor:"staged_at"`
}

// ManifestPatch is one applied patch in a stage manifest.
type ManifestPatch struct {
	Name    string `cbor:"name"`
	SHA256  string `cbor:"sha256,omitempty"`
	Strip   int    `cbor:"strip"`
	Reverse bool   `cbor:"reverse,omitempty"`
}

// Stage describes one prepared source tree.
type Stage struct {
	// ID is the install database row for this stage.
	ID int64

	Package string
	Version string

	// Dir is the stage directory; SourceDir is the unpacked source
	// tree inside it.
	Dir       string
	SourceDir string

	// SourceHash addresses the release archive in the source cache.
	SourceHash sourcecache.Hash

	Manifest Manifest
}

// Config carries a Stager's collaborators.
type Config struct {
	// StageRoot is the directory stage trees are created under.
	// Required.
	StageRoot string

	// Cache stores downloaded archives and patches. Required.
	Cache *sourcecache.Store

	// DB records stage and patch state. Required.
	DB *installdb.DB

	// Fetcher downloads resources on cache misses. nil means a zero
	// fetch.Client.
	Fetcher *fetch.Client

	// Keyring verifies release signatures. nil refuses recipes that
	// declare one.
	Keyring *signature.Keyring

	// Clock stamps manifests. nil means the real clock.
	Clock clock.Clock

	// Logger receives progress records. nil means discard.
	Logger *slog.Logger
}

// Options adjusts a single Prepare call.
type Options struct {
	// RecipeDir resolves file-relative patch entries. Empty means the
	// current directory.
	RecipeDir string
}

// Stager prepares, removes, and redoes stages.
type Stager struct {
	stageRoot string
	cache     *sourcecache.Store
	db        *installdb.DB
	fetcher   *fetch.Client
	keyring   *signature.Keyring
	clock     clock.Clock
	logger    *slog.Logger
}

// New builds a Stager from its collaborators.
func New(cfg Config) (*Stager, error) {
	if cfg.StageRoot == "" {
		return nil, fmt.Errorf("stage: StageRoot is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("stage: Cache is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("stage: DB is required")
	}
	s := &Stager{
		stageRoot: cfg.StageRoot,
		cache:     cfg.Cache,
		db:        cfg.DB,
		fetcher:   cfg.Fetcher,
		keyring:   cfg.Keyring,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.fetcher == nil {
		s.fetcher = &fetch.Client{}
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Prepare stages one version of a recipe. version selects a declared
// release; empty selects the latest.
//
// Every patch is fetched and parsed before the first one is applied,
// so a malformed patch cannot leave a half-patched tree. A patch that
// parses but fails to apply leaves the tree on disk for inspection,
// marks the stage row failed, and returns the apply error.
func (s *Stager) Prepare(ctx context.Context, r *recipe.Recipe, version string, opts Options) (*Stage, error) {
	release, err := s.selectRelease(r, version)
	if err != nil {
		return nil, err
	}

	sourceURL, err := r.SourceURL(release)
	if err != nil {
		return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	source, sourceHash, err := s.fetchSource(ctx, r, release, sourceURL)
	if err != nil {
		return nil, err
	}

	patches, err := s.loadPatches(ctx, r, release, opts)
	if err != nil {
		return nil, err
	}

	stageDir, err := s.createStageDir(r.Name, release.Version)
	if err != nil {
		return nil, err
	}
	sourceDir := filepath.Join(stageDir, "source")
	if err := Unpack(source, archiveFileName(sourceURL), sourceDir); err != nil {
		os.RemoveAll(stageDir)
		return nil, fmt.Errorf("stage %s@%s: unpacking source: %w", r.Name, release.Version, err)
	}
	s.logger.Info("source unpacked",
		"package", r.Name,
		"version", release.Version,
		"dir", stageDir,
	)

	stageID, err := s.db.RecordStage(ctx, installdb.Stage{
		Package:    r.Name,
		Version:    release.Version,
		Path:       stageDir,
		Status:     installdb.StatusStaged,
		SourceHash: sourceHash,
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	manifestPatches := make([]ManifestPatch, 0, len(patches))
	for ordinal, loaded := range patches {
		results, err := patch.ApplyFiles(sourceDir, loaded.parsed, patch.Options{
			Strip:   loaded.entry.StripLevel(),
			Reverse: loaded.entry.Reverse,
		})
		if err != nil {
			s.logger.Error("patch failed, leaving stage for inspection",
				"package", r.Name,
				"version", release.Version,
				"patch", loaded.name,
				"dir", stageDir,
				"error", err,
			)
			if statusErr := s.db.SetStatus(ctx, stageID, installdb.StatusFailed); statusErr != nil {
				s.logger.Error("marking stage failed", "stage", stageID, "error", statusErr)
			}
			return nil, fmt.Errorf("applying %s: %w", loaded.name, err)
		}

		record := installdb.PatchRecord{
			Ordinal: ordinal,
			Name:    loaded.name,
			SHA256:  loaded.sha256,
			Strip:   loaded.entry.StripLevel(),
			Reverse: loaded.entry.Reverse,
		}
		if err := s.db.RecordPatch(ctx, stageID, record); err != nil {
			return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
		}
		manifestPatches = append(manifestPatches, ManifestPatch{
			Name:    loaded.name,
			SHA256:  loaded.sha256,
			Strip:   loaded.entry.StripLevel(),
			Reverse: loaded.entry.Reverse,
		})
		s.logger.Info("applied patch",
			"package", r.Name,
			"version", release.Version,
			"patch", loaded.name,
			"files", len(results),
		)
	}

	if err := s.db.SetStatus(ctx, stageID, installdb.StatusPatched); err != nil {
		return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	manifest := Manifest{
		Package:    r.Name,
		Version:    release.Version,
		SourceURL:  sourceURL,
		SourceHash: sourceHash,
		Patches:    manifestPatches,
		StagedAt:   s.clock.Now().UTC(),
	}
	if err := writeManifest(stageDir, manifest); err != nil {
		return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	s.logger.Info("stage prepared",
		"package", r.Name,
		"version", release.Version,
		"dir", stageDir,
		"patches", len(patches),
	)
	return &Stage{
		ID:         stageID,
		Package:    r.Name,
		Version:    release.Version,
		Dir:        stageDir,
		SourceDir:  sourceDir,
		SourceHash: sourceHash,
		Manifest:   manifest,
	}, nil
}

// Remove deletes a stage's tree and its database row.
func (s *Stager) Remove(ctx context.Context, stageID int64) error {
	row, err := s.db.Get(ctx, stageID)
	if err != nil {
		return err
	}
	if row.Path != "" {
		if err := os.RemoveAll(row.Path); err != nil {
			return fmt.Errorf("removing stage tree: %w", err)
		}
	}
	if err := s.db.Remove(ctx, stageID); err != nil {
		return err
	}
	s.logger.Info("stage removed",
		"package", row.Package,
		"version", row.Version,
		"dir", row.Path,
	)
	return nil
}

// Restage removes a stage and prepares the same package version again,
// picking up recipe and patch changes. The recipe must be the one the
// stage was created from.
func (s *Stager) Restage(ctx context.Context, stageID int64, r *recipe.Recipe, opts Options) (*Stage, error) {
	row, err := s.db.Get(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if row.Package != r.Name {
		return nil, fmt.Errorf("stage %d is %s, not %s", stageID, row.Package, r.Name)
	}
	version := row.Version
	if err := s.Remove(ctx, stageID); err != nil {
		return nil, err
	}
	return s.Prepare(ctx, r, version, opts)
}

// selectRelease resolves the requested version, or the latest when
// none is requested.
func (s *Stager) selectRelease(r *recipe.Recipe, version string) (*recipe.Version, error) {
	if version == "" {
		release := r.Latest()
		if release == nil {
			return nil, fmt.Errorf("recipe %s declares no versions", r.Name)
		}
		return release, nil
	}
	release, ok := r.FindVersion(version)
	if !ok {
		return nil, fmt.Errorf("recipe %s has no version %s", r.Name, version)
	}
	return release, nil
}

// fetchSource returns the verified release archive. The declared
// sha256 is enforced before anything enters the cache, so a cache hit
// is already-verified content. When the release names a detached
// signature it is checked on every call; trust in the keyring can
// change after the archive was cached.
func (s *Stager) fetchSource(ctx context.Context, r *recipe.Recipe, release *recipe.Version, sourceURL string) ([]byte, sourcecache.Hash, error) {
	data, hash, err := s.fetchCached(ctx, sourceURL, release.SHA256)
	if err != nil {
		return nil, sourcecache.Hash{}, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	if release.Signature != "" {
		if s.keyring == nil {
			return nil, sourcecache.Hash{}, fmt.Errorf(
				"stage %s@%s: release declares a signature but no keyring is configured",
				r.Name, release.Version)
		}
		signatureURL, err := r.SignatureURL(release)
		if err != nil {
			return nil, sourcecache.Hash{}, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
		}
		sig, err := s.fetcher.Fetch(ctx, signatureURL)
		if err != nil {
			return nil, sourcecache.Hash{}, fmt.Errorf("stage %s@%s: fetching signature: %w", r.Name, release.Version, err)
		}
		signer, err := s.keyring.Verify(data, sig)
		if err != nil {
			return nil, sourcecache.Hash{}, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
		}
		s.logger.Info("signature verified",
			"package", r.Name,
			"version", release.Version,
			"signer", signer,
		)
	}

	return data, hash, nil
}

// loadedPatch is a patch resolved, verified, and parsed, ready to
// apply.
type loadedPatch struct {
	entry  recipe.PatchEntry
	name   string
	sha256 string
	parsed *patch.Patch
}

// loadPatches resolves, verifies, and parses every patch entry that
// applies to the release, in declaration order.
func (s *Stager) loadPatches(ctx context.Context, r *recipe.Recipe, release *recipe.Version, opts Options) ([]loadedPatch, error) {
	entries, err := r.PatchesFor(release.Version)
	if err != nil {
		return nil, fmt.Errorf("stage %s@%s: %w", r.Name, release.Version, err)
	}

	loaded := make([]loadedPatch, 0, len(entries))
	for _, entry := range entries {
		name := entry.Source()
		data, digest, err := s.patchData(ctx, entry, opts)
		if err != nil {
			return nil, fmt.Errorf("stage %s@%s: patch %s: %w", r.Name, release.Version, name, err)
		}
		parsed, err := patch.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("stage %s@%s: patch %s: %w", r.Name, release.Version, name, err)
		}
		loaded = append(loaded, loadedPatch{
			entry:  entry,
			name:   name,
			sha256: digest,
			parsed: parsed,
		})
	}
	return loaded, nil
}

// patchData returns a patch's bytes and the digest to record for it.
// File entries resolve against the recipe directory; url entries flow
// through the source cache like release archives.
func (s *Stager) patchData(ctx context.Context, entry recipe.PatchEntry, opts Options) ([]byte, string, error) {
	if entry.File != "" {
		filePath := filepath.Join(opts.RecipeDir, filepath.FromSlash(entry.File))
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, "", fmt.Errorf("reading patch file: %w", err)
		}
		if entry.SHA256 != "" {
			if err := fetch.VerifySHA256(data, entry.SHA256); err != nil {
				return nil, "", err
			}
		}
		digest := strings.ToLower(entry.SHA256)
		if digest == "" {
			digest = fetch.SHA256Hex(data)
		}
		return data, digest, nil
	}

	data, _, err := s.fetchCached(ctx, entry.URL, entry.SHA256)
	if err != nil {
		return nil, "", err
	}
	digest := strings.ToLower(entry.SHA256)
	if digest == "" {
		digest = fetch.SHA256Hex(data)
	}
	return data, digest, nil
}

// fetchCached returns a resource's bytes, preferring the source cache.
// On a miss the resource is downloaded, verified against wantSHA when
// one is given, and cached. Unverified content never enters the cache.
func (s *Stager) fetchCached(ctx context.Context, rawURL, wantSHA string) ([]byte, sourcecache.Hash, error) {
	if wantSHA != "" {
		hash, found, err := s.cache.FindBySHA256(wantSHA)
		if err != nil {
			return nil, sourcecache.Hash{}, err
		}
		if found {
			data, _, err := s.cache.Get(hash)
			if err == nil {
				s.logger.Debug("source cache hit",
					"ref", sourcecache.FormatRef(hash),
					"url", rawURL,
				)
				return data, hash, nil
			}
			s.logger.Warn("cache entry unreadable, downloading again",
				"ref", sourcecache.FormatRef(hash),
				"error", err,
			)
		}
	}

	data, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, sourcecache.Hash{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	if wantSHA != "" {
		if err := fetch.VerifySHA256(data, wantSHA); err != nil {
			return nil, sourcecache.Hash{}, fmt.Errorf("%s: %w", rawURL, err)
		}
	}

	hash, err := s.cache.Put(data, sourcecache.Meta{
		URL:    rawURL,
		SHA256: strings.ToLower(wantSHA),
	})
	if err != nil {
		return nil, sourcecache.Hash{}, fmt.Errorf("caching %s: %w", rawURL, err)
	}
	return data, hash, nil
}

// createStageDir makes a fresh, uniquely named directory under the
// stage root. The random suffix keeps repeated stagings of the same
// version from colliding.
func (s *Stager) createStageDir(name, version string) (string, error) {
	if err := os.MkdirAll(s.stageRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating stage root: %w", err)
	}
	dir := filepath.Join(s.stageRoot, fmt.Sprintf("%s-%s-%s", name, version, uuid.NewString()[:8]))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating stage directory: %w", err)
	}
	return dir, nil
}

// archiveFileName extracts the file name from a source URL so Unpack
// can pick the container format from its suffix.
func archiveFileName(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return path.Base(parsed.Path)
	}
	return filepath.Base(rawURL)
}

func writeManifest(stageDir string, manifest Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding stage manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stageDir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("writing stage manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest of a prepared stage directory.
func ReadManifest(stageDir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(stageDir, ManifestName))
	if err != nil {
		return Manifest{}, fmt.Errorf("reading stage manifest: %w", err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decoding stage manifest: %w", err)
	}
	return manifest, nil
}
