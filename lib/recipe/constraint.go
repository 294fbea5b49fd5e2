// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"fmt"
	"strings"
)

// Version ordering splits version strings into numeric and alphabetic
// runs ("1.0rc1" → 1, 0, "rc", 1) and compares them elementwise:
// numeric runs compare as integers, alphabetic runs lexically, and a
// numeric run outranks an alphabetic one in the same position, so
// 1.0.1 sorts after 1.0rc1. When one version is a prefix of the
// other, the longer sorts later: 1.0 < 1.0.1.

// CompareVersions orders two version strings, returning -1, 0, or 1.
func CompareVersions(a, b string) int {
	tokensA, tokensB := tokenizeVersion(a), tokenizeVersion(b)
	for i := 0; i < len(tokensA) && i < len(tokensB); i++ {
		if order := tokensA[i].compare(tokensB[i]); order != 0 {
			return order
		}
	}
	switch {
	case len(tokensA) < len(tokensB):
		return -1
	case len(tokensA) > len(tokensB):
		return 1
	}
	return 0
}

// Constraint restricts versions the way the when field of a patch
// entry and the find command's query syntax do:
//
//	""          any version
//	"1.0.1"     1.0.1 and anything below it (1.0.1.x)
//	"=1.0.1"    exactly 1.0.1
//	"1.8:"      1.8 and newer
//	":2.0"      2.0.x and older
//	"1.8:2.0"   both bounds, inclusive
//
// A leading @ is accepted and ignored, so "mercury@1.8:" splits
// cleanly into name and constraint.
type Constraint struct {
	raw   string
	exact string
	// prefix holds the bare-version form; low/high the range bounds.
	// Empty strings mean unbounded.
	prefix string
	low    string
	high   string
	any    bool
}

// ParseConstraint parses a version constraint.
func ParseConstraint(text string) (Constraint, error) {
	constraint := Constraint{raw: text}
	body := strings.TrimPrefix(strings.TrimSpace(text), "@")

	if body == "" || body == ":" {
		constraint.any = true
		return constraint, nil
	}
	if strings.ContainsAny(body, " \t") {
		return Constraint{}, fmt.Errorf("constraint %q contains whitespace", text)
	}

	if exact, ok := strings.CutPrefix(body, "="); ok {
		if exact == "" || strings.Contains(exact, ":") {
			return Constraint{}, fmt.Errorf("malformed exact constraint %q", text)
		}
		constraint.exact = exact
		return constraint, nil
	}

	switch parts := strings.Split(body, ":"); len(parts) {
	case 1:
		constraint.prefix = parts[0]
	case 2:
		constraint.low, constraint.high = parts[0], parts[1]
	default:
		return Constraint{}, fmt.Errorf("constraint %q has more than one colon", text)
	}
	return constraint, nil
}

// Matches reports whether a version satisfies the constraint.
func (c Constraint) Matches(version string) bool {
	switch {
	case c.any:
		return true
	case c.exact != "":
		return CompareVersions(version, c.exact) == 0
	case c.prefix != "":
		return versionHasPrefix(version, c.prefix)
	}
	if c.low != "" && CompareVersions(version, c.low) < 0 {
		return false
	}
	if c.high != "" && CompareVersions(version, c.high) > 0 && !versionHasPrefix(version, c.high) {
		return false
	}
	return true
}

// String returns the constraint as written.
func (c Constraint) String() string { return c.raw }

// versionHasPrefix reports whether version starts with the prefix
// version's tokens: 1.0.1 matches prefix 1.0, while 1.0.10 does not
// match prefix 1.0.1.
func versionHasPrefix(version, prefix string) bool {
	versionTokens, prefixTokens := tokenizeVersion(version), tokenizeVersion(prefix)
	if len(versionTokens) < len(prefixTokens) {
		return false
	}
	for i := range prefixTokens {
		if versionTokens[i].compare(prefixTokens[i]) != 0 {
			return false
		}
	}
	return true
}

type versionToken struct {
	numeric bool
	text    string
}

// compare orders two tokens: numerics by value, alphabetics lexically,
// and numeric above alphabetic.
func (t versionToken) compare(other versionToken) int {
	if t.numeric != other.numeric {
		if t.numeric {
			return 1
		}
		return -1
	}
	if t.numeric {
		a, b := strings.TrimLeft(t.text, "0"), strings.TrimLeft(other.text, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	}
	return strings.Compare(t.text, other.text)
}

// tokenizeVersion splits a version into numeric and alphabetic runs,
// treating dots, hyphens, and underscores as separators.
func tokenizeVersion(version string) []versionToken {
	var tokens []versionToken
	i := 0
	for i < len(version) {
		c := version[i]
		switch {
		case c == '.' || c == '-' || c == '_':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(version) && version[i] >= '0' && version[i] <= '9' {
				i++
			}
			tokens = append(tokens, versionToken{numeric: true, text: version[start:i]})
		default:
			start := i
			for i < len(version) && !isVersionBreak(version[i]) {
				i++
			}
			tokens = append(tokens, versionToken{text: version[start:i]})
		}
	}
	return tokens
}

func isVersionBreak(c byte) bool {
	return c == '.' || c == '-' || c == '_' || (c >= '0' && c <= '9')
}
