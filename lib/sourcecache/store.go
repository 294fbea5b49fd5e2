// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sourcecache stores fetched source archives and patch files,
// content-addressed, for reuse across stagings.
//
// Every blob is addressed by the BLAKE3 keyed hash of its uncompressed
// content and stored under <root>/blobs/<hh>/<hash>, where <hh> is the
// first two hex characters. A blob file is one compression-tag byte
// followed by the (possibly compressed) payload. Next to each blob
// lives a deterministic-CBOR sidecar (<hash>.meta) recording the
// source URL, declared sha256, uncompressed size, stored-at timestamp,
// and compression tag name.
//
// The sidecar is the commit marker: Put writes the blob first and the
// sidecar second, both atomically, so a blob without a sidecar is an
// orphan from an interrupted Put. Has and Get treat orphans as absent;
// Verify reports them.
package sourcecache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quarry-build/quarry/lib/clock"
	"github.com/quarry-build/quarry/lib/codec"
)

// ErrNotFound reports a hash with no committed blob in the cache.
var ErrNotFound = errors.New("source not in cache")

// Meta is the sidecar metadata stored next to each blob.
type Meta struct {
	// URL is the location the blob was fetched from, when known.
	URL string `cbor:"url,omitempty"`

	// SHA256 is the recipe-declared digest of the uncompressed
	// content, when one was declared.
	SHA256 string `cbor:"sha256,omitempty"`

	// Size is the uncompressed content length. Decompression needs
	// it exactly.
	Size int64 `cbor:"size"`

	// StoredAt is when the blob entered the cache, UTC.
	StoredAt time.Time `cbor:"stored_at"`

	// Compression is the tag name ("none", "lz4", "zstd"), mirroring
	// the blob's leading tag byte for listing without opening blobs.
	Compression string `cbor:"compression"`
}

// Entry pairs a cached hash with its metadata for listings.
type Entry struct {
	Hash Hash
	Meta Meta

	// StoredSize is the on-disk blob size including the tag byte.
	StoredSize int64
}

// Config configures a source cache store.
type Config struct {
	// Root is the cache directory. Created if it does not exist.
	Root string

	// Clock provides stored-at timestamps and the Prune cutoff
	// comparison. nil means the real clock.
	Clock clock.Clock

	// Logger receives store/evict records. nil means discard.
	Logger *slog.Logger
}

// Store is a content-addressed cache of source blobs on the local
// filesystem. Methods are safe for concurrent use by independent
// processes to the extent the filesystem's rename atomicity provides;
// quarry itself runs one staging at a time.
type Store struct {
	root   string
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (creating if needed) a source cache rooted at cfg.Root.
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("source cache root is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Root, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{root: cfg.Root, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Put stores data and returns its hash. Duplicate puts for the same
// content are idempotent and keep the existing metadata.
func (s *Store) Put(data []byte, meta Meta) (Hash, error) {
	hash := HashSource(data)
	if s.Has(hash) {
		s.logger.Debug("source already cached", "ref", FormatRef(hash))
		return hash, nil
	}

	compressed, tag, err := CompressAuto(data)
	if err != nil {
		return Hash{}, fmt.Errorf("compressing source %s: %w", FormatRef(hash), err)
	}

	meta.Size = int64(len(data))
	meta.StoredAt = s.clock.Now().UTC()
	meta.Compression = tag.String()

	sidecar, err := codec.Marshal(meta)
	if err != nil {
		return Hash{}, fmt.Errorf("encoding sidecar for %s: %w", FormatRef(hash), err)
	}

	blob := make([]byte, 0, len(compressed)+1)
	blob = append(blob, byte(tag))
	blob = append(blob, compressed...)

	blobPath := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return Hash{}, fmt.Errorf("creating blob shard directory: %w", err)
	}
	if err := s.writeFileAtomic(blobPath, blob); err != nil {
		return Hash{}, fmt.Errorf("writing blob %s: %w", FormatRef(hash), err)
	}
	if err := s.writeFileAtomic(s.metaPath(hash), sidecar); err != nil {
		return Hash{}, fmt.Errorf("writing sidecar %s: %w", FormatRef(hash), err)
	}

	s.logger.Info("stored source",
		"ref", FormatRef(hash),
		"size", meta.Size,
		"stored_size", len(blob),
		"compression", meta.Compression,
	)
	return hash, nil
}

// Get returns the uncompressed content and metadata for a hash. The
// content is re-hashed on the way out; corruption is an error, not a
// silent wrong answer.
func (s *Store) Get(hash Hash) ([]byte, Meta, error) {
	meta, err := s.readMeta(hash)
	if err != nil {
		return nil, Meta{}, err
	}

	blob, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, fmt.Errorf("blob %s has a sidecar but no data: %w", FormatRef(hash), ErrNotFound)
		}
		return nil, Meta{}, fmt.Errorf("reading blob %s: %w", FormatRef(hash), err)
	}
	if len(blob) < 1 {
		return nil, Meta{}, fmt.Errorf("blob %s is empty", FormatRef(hash))
	}

	data, err := Decompress(blob[1:], CompressionTag(blob[0]), int(meta.Size))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("blob %s: %w", FormatRef(hash), err)
	}
	if HashSource(data) != hash {
		return nil, Meta{}, fmt.Errorf("blob %s failed content verification", FormatRef(hash))
	}
	return data, meta, nil
}

// Has reports whether a committed blob exists for the hash.
func (s *Store) Has(hash Hash) bool {
	_, err := os.Stat(s.metaPath(hash))
	return err == nil
}

// FindBySHA256 looks up a cached blob by the sha256 digest recorded in
// its sidecar. Recipes declare sources by sha256 while the cache is
// keyed by BLAKE3, so this is how a staging checks the cache before
// downloading. Case is ignored. found is false when no committed entry
// carries the digest.
func (s *Store) FindBySHA256(digest string) (hash Hash, found bool, err error) {
	if digest == "" {
		return Hash{}, false, nil
	}
	err = s.walkSidecars(func(candidate Hash) error {
		if found {
			return nil
		}
		meta, readErr := s.readMeta(candidate)
		if readErr != nil {
			// A sidecar that vanished or fails to decode is a Verify
			// problem, not a lookup failure.
			return nil
		}
		if strings.EqualFold(meta.SHA256, digest) {
			hash = candidate
			found = true
		}
		return nil
	})
	if err != nil {
		return Hash{}, false, err
	}
	return hash, found, nil
}

// List returns every committed cache entry ordered by hash.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.walkSidecars(func(hash Hash) error {
		meta, err := s.readMeta(hash)
		if err != nil {
			return err
		}
		entry := Entry{Hash: hash, Meta: meta}
		if info, err := os.Stat(s.blobPath(hash)); err == nil {
			entry.StoredSize = info.Size()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return FormatHash(entries[i].Hash) < FormatHash(entries[j].Hash)
	})
	return entries, nil
}

// Delete removes a blob and its sidecar. The sidecar goes first so a
// failure part-way leaves an orphan, never a committed blob with
// missing data.
func (s *Store) Delete(hash Hash) error {
	if err := os.Remove(s.metaPath(hash)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", FormatRef(hash), ErrNotFound)
		}
		return fmt.Errorf("removing sidecar %s: %w", FormatRef(hash), err)
	}
	if err := os.Remove(s.blobPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing blob %s: %w", FormatRef(hash), err)
	}
	s.logger.Info("deleted source", "ref", FormatRef(hash))
	return nil
}

// Verify re-reads every blob and returns a list of human-readable
// corruption reports: decompression failures, content hash mismatches,
// orphaned blobs, and sidecars without data. An empty list means the
// cache is sound.
func (s *Store) Verify() ([]string, error) {
	issues := []string{}

	err := s.walkSidecars(func(hash Hash) error {
		if _, _, err := s.Get(hash); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", FormatHash(hash), err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Orphaned blobs: data files whose sidecar never got written.
	blobsRoot := filepath.Join(s.root, "blobs")
	err = filepath.WalkDir(blobsRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".meta") || strings.HasSuffix(name, ".tmp") {
			return nil
		}
		if _, statErr := os.Stat(path + ".meta"); os.IsNotExist(statErr) {
			issues = append(issues, fmt.Sprintf("%s: orphaned blob without sidecar", name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking cache: %w", err)
	}

	sort.Strings(issues)
	return issues, nil
}

// Prune deletes every entry stored before the cutoff and returns the
// removed hashes.
func (s *Store) Prune(olderThan time.Time) ([]Hash, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}

	var removed []Hash
	for _, entry := range entries {
		if !entry.Meta.StoredAt.Before(olderThan) {
			continue
		}
		if err := s.Delete(entry.Hash); err != nil {
			return removed, err
		}
		removed = append(removed, entry.Hash)
	}
	return removed, nil
}

func (s *Store) blobPath(hash Hash) string {
	hexString := FormatHash(hash)
	return filepath.Join(s.root, "blobs", hexString[:2], hexString)
}

func (s *Store) metaPath(hash Hash) string {
	return s.blobPath(hash) + ".meta"
}

func (s *Store) readMeta(hash Hash) (Meta, error) {
	sidecar, err := os.ReadFile(s.metaPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%s: %w", FormatRef(hash), ErrNotFound)
		}
		return Meta{}, fmt.Errorf("reading sidecar %s: %w", FormatRef(hash), err)
	}
	var meta Meta
	if err := codec.Unmarshal(sidecar, &meta); err != nil {
		return Meta{}, fmt.Errorf("decoding sidecar %s: %w", FormatRef(hash), err)
	}
	return meta, nil
}

// walkSidecars calls visit for every committed entry's hash.
func (s *Store) walkSidecars(visit func(Hash) error) error {
	blobsRoot := filepath.Join(s.root, "blobs")
	return filepath.WalkDir(blobsRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".meta") {
			return nil
		}
		hash, parseErr := ParseHash(strings.TrimSuffix(name, ".meta"))
		if parseErr != nil {
			// Stray files in the cache directory are not entries.
			return nil
		}
		return visit(hash)
	})
}

// writeFileAtomic writes data via temp file + rename in the target's
// directory.
func (s *Store) writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	success = true
	return nil
}
