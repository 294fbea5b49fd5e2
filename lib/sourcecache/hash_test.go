// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package sourcecache

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/quarry-build/quarry/lib/codec"
)

func TestHashSourceDeterministic(t *testing.T) {
	t.Parallel()

	data := []byte("mercury-1.0.1.tar.gz contents")
	first := HashSource(data)
	second := HashSource(data)
	if first != second {
		t.Errorf("same data hashed differently: %s vs %s", first, second)
	}

	other := HashSource([]byte("mercury-1.0.2.tar.gz contents"))
	if first == other {
		t.Errorf("different data produced the same hash %s", first)
	}
}

func TestHashSourceKeyed(t *testing.T) {
	t.Parallel()

	// The cache hash is domain-separated from plain BLAKE3 so cache
	// refs never collide with hashes computed elsewhere.
	data := []byte("some archive bytes")
	unkeyed := blake3.Sum256(data)
	if HashSource(data) == Hash(unkeyed) {
		t.Error("HashSource matches unkeyed blake3, domain key not applied")
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	t.Parallel()

	hash := HashSource([]byte("roundtrip"))
	formatted := FormatHash(hash)
	if len(formatted) != 64 {
		t.Errorf("formatted hash is %d characters, want 64: %s", len(formatted), formatted)
	}
	if formatted != strings.ToLower(formatted) {
		t.Errorf("formatted hash is not lowercase: %s", formatted)
	}

	parsed, err := ParseHash(formatted)
	if err != nil {
		t.Fatalf("ParseHash(%q) failed: %v", formatted, err)
	}
	if parsed != hash {
		t.Errorf("roundtrip changed hash: %s -> %s", hash, parsed)
	}
}

func TestParseHashErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		input         string
		wantSubstring string
	}{
		{
			name:          "not hex",
			input:         strings.Repeat("zz", 32),
			wantSubstring: "parsing source hash",
		},
		{
			name:          "too short",
			input:         "abcd",
			wantSubstring: "want 32",
		},
		{
			name:          "too long",
			input:         strings.Repeat("ab", 40),
			wantSubstring: "want 32",
		},
		{
			name:          "empty",
			input:         "",
			wantSubstring: "want 32",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseHash(testCase.input)
			if err == nil {
				t.Fatalf("ParseHash(%q) succeeded, want error", testCase.input)
			}
			if !strings.Contains(err.Error(), testCase.wantSubstring) {
				t.Errorf("error %q does not contain %q", err, testCase.wantSubstring)
			}
		})
	}
}

func TestFormatRef(t *testing.T) {
	t.Parallel()

	hash := HashSource([]byte("ref test"))
	ref := FormatRef(hash)

	if !strings.HasPrefix(ref, "src-") {
		t.Errorf("ref %q missing src- prefix", ref)
	}
	if len(ref) != len("src-")+12 {
		t.Errorf("ref %q has wrong length %d", ref, len(ref))
	}
	if !strings.HasPrefix(FormatHash(hash), strings.TrimPrefix(ref, "src-")) {
		t.Errorf("ref %q is not a prefix of hash %s", ref, FormatHash(hash))
	}
}

func TestHashTextRoundtrip(t *testing.T) {
	t.Parallel()

	type record struct {
		Source Hash `json:"source" cbor:"source"`
	}
	original := record{Source: HashSource([]byte("serialized"))}

	jsonData, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if want := `"` + FormatHash(original.Source) + `"`; !strings.Contains(string(jsonData), want) {
		t.Errorf("JSON %s does not contain hex hash %s", jsonData, want)
	}
	var fromJSON record
	if err := json.Unmarshal(jsonData, &fromJSON); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if fromJSON.Source != original.Source {
		t.Errorf("JSON roundtrip changed hash: %s -> %s", original.Source, fromJSON.Source)
	}

	// CBOR sidecars use the same text form via encoding.TextMarshaler.
	cborData, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("codec.Marshal failed: %v", err)
	}
	var fromCBOR record
	if err := codec.Unmarshal(cborData, &fromCBOR); err != nil {
		t.Fatalf("codec.Unmarshal failed: %v", err)
	}
	if fromCBOR.Source != original.Source {
		t.Errorf("CBOR roundtrip changed hash: %s -> %s", original.Source, fromCBOR.Source)
	}
}
