// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature verifies detached OpenPGP signatures on downloaded
// source archives.
//
// Upstream projects publish a detached signature (usually armored,
// .asc) next to each release archive. A recipe version that declares a
// signature URL gets its archive checked against the keyring configured
// in quarry's config before staging proceeds. Verification answers two
// questions: the archive is bit-for-bit what was signed, and the signer
// is one of the keys the operator chose to trust.
package signature

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Keyring holds the trusted public keys signatures are checked
// against.
type Keyring struct {
	entities openpgp.EntityList
}

// LoadKeyring reads a public keyring from path. Armored and binary
// keyrings are both accepted.
func LoadKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	keyring, err := ParseKeyring(data)
	if err != nil {
		return nil, fmt.Errorf("keyring %s: %w", path, err)
	}
	return keyring, nil
}

// ParseKeyring parses a public keyring, trying armored form first and
// falling back to binary.
func ParseKeyring(data []byte) (*Keyring, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing keyring: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("keyring contains no keys")
	}
	return &Keyring{entities: entities}, nil
}

// Count returns the number of keys in the keyring.
func (k *Keyring) Count() int { return len(k.entities) }

// armorHeader opens an ASCII-armored detached signature.
const armorHeader = "-----BEGIN PGP SIGNATURE-----"

// Verify checks a detached signature over data and returns the primary
// identity of the signing key. Armored and binary signatures are both
// accepted; the signature must come from a key in the keyring.
func (k *Keyring) Verify(data, sig []byte) (string, error) {
	check := openpgp.CheckDetachedSignature
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armorHeader)) {
		check = openpgp.CheckArmoredDetachedSignature
	}
	entity, err := check(k.entities, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	return signerName(entity), nil
}

// Verify loads the keyring at keyringPath and checks sig over data.
// Convenience for one-shot checks; callers verifying many archives
// should load the keyring once and reuse it.
func Verify(keyringPath string, data, sig []byte) (string, error) {
	keyring, err := LoadKeyring(keyringPath)
	if err != nil {
		return "", err
	}
	return keyring.Verify(data, sig)
}

// signerName describes the signing key for logs: the primary user ID
// when the key carries one, the fingerprint otherwise.
func signerName(entity *openpgp.Entity) string {
	if identity := entity.PrimaryIdentity(); identity != nil {
		return identity.Name
	}
	return fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)
}
