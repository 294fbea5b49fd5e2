// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides quarry's standard CBOR encoding configuration.
//
// Quarry uses two serialization formats with a clear boundary:
//
//   - JSON for human-facing surfaces: recipes are authored as JSONC,
//     and CLI --json output is plain JSON.
//   - CBOR for machine-written state: stage manifests
//     (.quarry-stage.cbor) and source cache sidecar metadata.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every quarry package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so manifests can be compared and content-addressed.
//
// For buffer-oriented operations (state files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR (stage
//     manifests, cache sidecars).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
