// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package recipe provides parsing, validation, and variable expansion
// for package recipes. A recipe names a package, its fetchable
// versions, and the patches each version needs before it can build.
//
// Recipes are authored on disk as JSONC files (JSON extended with
// comments and trailing commas).
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Recipe
//  2. Validate: structural checks (version syntax, checksum format,
//     file XOR url on patches, parseable when constraints)
//  3. FindVersion / PatchesFor: select what a staging run needs
//  4. SourceURL: substitute ${name}, ${version}, and recipe variables
//     into the download location
package recipe

import (
	"fmt"
	"sort"
)

// Recipe describes one package: where its source releases live and
// which patches apply to which versions.
type Recipe struct {
	// Name identifies the package: lower-case letters, digits, and
	// hyphens.
	Name string `json:"name"`

	// Description is optional markdown shown by the CLI.
	Description string `json:"description,omitempty"`

	// Homepage is the upstream project page.
	Homepage string `json:"homepage,omitempty"`

	// Versions lists fetchable releases, newest first by convention.
	// Order on disk is preserved but never relied on.
	Versions []Version `json:"versions"`

	// Patches apply to the unpacked source tree in declaration
	// order. Order is application order.
	Patches []PatchEntry `json:"patches,omitempty"`

	// Variables are available as ${NAME} references in url and
	// signature fields, alongside the built-in ${name} and
	// ${version}.
	Variables map[string]string `json:"variables,omitempty"`
}

// Version is one fetchable release of a package.
type Version struct {
	// Version is the release identifier: digits, letters, dots,
	// underscores, and hyphens, starting with a digit or letter.
	Version string `json:"version"`

	// URL is the archive location. https, http, and file schemes are
	// supported, and ${...} references are expanded before fetching.
	URL string `json:"url"`

	// SHA256 is the hex digest the downloaded archive must match.
	SHA256 string `json:"sha256"`

	// Signature is an optional URL of a detached armored OpenPGP
	// signature over the archive.
	Signature string `json:"signature,omitempty"`
}

// PatchEntry is one patch a recipe applies. Exactly one of File and
// URL names the patch source: File is resolved relative to the
// recipe's directory, URL is fetched and cached like a source
// archive.
type PatchEntry struct {
	File string `json:"file,omitempty"`
	URL  string `json:"url,omitempty"`

	// SHA256 guards the patch content. Required for URL patches;
	// optional for local files.
	SHA256 string `json:"sha256,omitempty"`

	// Strip is the number of leading path components to remove from
	// diff paths, like patch -p. Unset means 1, the convention for
	// a/ b/ prefixed patches.
	Strip *int `json:"strip,omitempty"`

	// Reverse un-applies the patch.
	Reverse bool `json:"reverse,omitempty"`

	// When restricts the patch to versions matching a constraint,
	// for example "1.0:" or ":1.0.1". Empty applies always.
	When string `json:"when,omitempty"`
}

// StripLevel returns the effective strip level, defaulting to 1.
func (p *PatchEntry) StripLevel() int {
	if p.Strip == nil {
		return 1
	}
	return *p.Strip
}

// Source returns whichever of File and URL is set.
func (p *PatchEntry) Source() string {
	if p.File != "" {
		return p.File
	}
	return p.URL
}

// FindVersion returns the release with the given version string.
func (r *Recipe) FindVersion(version string) (*Version, bool) {
	for i := range r.Versions {
		if r.Versions[i].Version == version {
			return &r.Versions[i], true
		}
	}
	return nil, false
}

// Latest returns the highest version by release ordering, or nil for
// a recipe with no versions.
func (r *Recipe) Latest() *Version {
	if len(r.Versions) == 0 {
		return nil
	}
	latest := &r.Versions[0]
	for i := 1; i < len(r.Versions); i++ {
		if CompareVersions(r.Versions[i].Version, latest.Version) > 0 {
			latest = &r.Versions[i]
		}
	}
	return latest
}

// SortedVersions returns the version strings newest first.
func (r *Recipe) SortedVersions() []string {
	versions := make([]string, len(r.Versions))
	for i, release := range r.Versions {
		versions[i] = release.Version
	}
	sort.Slice(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) > 0
	})
	return versions
}

// PatchesFor returns the patches that apply to a version, in
// declaration order. Constraint parse failures surface as errors
// here only when Validate was skipped.
func (r *Recipe) PatchesFor(version string) ([]PatchEntry, error) {
	var applicable []PatchEntry
	for i, entry := range r.Patches {
		if entry.When == "" {
			applicable = append(applicable, entry)
			continue
		}
		constraint, err := ParseConstraint(entry.When)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i+1, err)
		}
		if constraint.Matches(version) {
			applicable = append(applicable, entry)
		}
	}
	return applicable, nil
}
