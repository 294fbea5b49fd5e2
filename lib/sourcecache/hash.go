// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package sourcecache

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest addressing a cached source blob.
type Hash [32]byte

// sourceDomainKey is the 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes hash differently in other
// contexts. The value is a fixed protocol constant — changing it
// invalidates every existing cache. The bytes are the ASCII encoding
// of the domain name, zero-padded to 32 bytes, so the key is readable
// in hex dumps without sacrificing any cryptographic property.
var sourceDomainKey = [32]byte{
	'q', 'u', 'a', 'r', 'r', 'y', ' ', 's', 'o', 'u', 'r', 'c', 'e', ' ',
	'c', 'a', 'c', 'h', 'e', ' ', 'h', 'a', 's', 'h', 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashSource computes the cache address of a source blob. Hashes are
// always computed on uncompressed bytes so addresses survive
// compression algorithm changes.
func HashSource(data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which the fixed-size key
	// guarantees, so the error path cannot fire.
	hasher, err := blake3.NewKeyed(sourceDomainKey[:])
	if err != nil {
		panic("sourcecache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in metadata, logs, and CLI output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing source hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("source hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatRef returns the short source reference: the "src-" prefix
// followed by the first 12 hex characters. Used in logs and stage
// manifests where the full hash is noise.
func FormatRef(hash Hash) string {
	return "src-" + hex.EncodeToString(hash[:6])
}

// MarshalText implements encoding.TextMarshaler so hashes serialize
// as hex text in CBOR sidecars and JSON output.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(FormatHash(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// String returns the full hex form.
func (h Hash) String() string { return FormatHash(h) }
