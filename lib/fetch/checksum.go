// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SHA256Hex returns the lower-case hex SHA-256 digest of data, the
// form recipes declare.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifySHA256 checks data against an expected hex digest. Case is
// ignored; recipes normally declare lower case.
func VerifySHA256(data []byte, wantHex string) error {
	got := SHA256Hex(data)
	if !strings.EqualFold(got, wantHex) {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", got, strings.ToLower(wantHex))
	}
	return nil
}
