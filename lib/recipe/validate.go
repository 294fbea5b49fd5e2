// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
)

var (
	namePattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	versionPattern    = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._-]*$`)
	sha256Pattern     = regexp.MustCompile(`^[0-9a-f]{64}$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks a recipe for structural problems and returns a list
// of human-readable issues. An empty slice means the recipe is valid.
// Validation is purely local: URLs are checked for shape, never
// fetched.
func Validate(r *Recipe) []string {
	var issues []string

	if r.Name == "" {
		issues = append(issues, "name is required")
	} else if !namePattern.MatchString(r.Name) {
		issues = append(issues, fmt.Sprintf("name %q must be lower-case letters, digits, and hyphens", r.Name))
	}

	for _, name := range []string{"name", "version"} {
		if _, ok := r.Variables[name]; ok {
			issues = append(issues, fmt.Sprintf("variable %q shadows the built-in reference", name))
		}
	}
	for name := range r.Variables {
		if !identifierPattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf("variable name %q is not a valid identifier", name))
		}
	}

	if len(r.Versions) == 0 {
		issues = append(issues, "at least one version is required")
	}
	seenVersions := map[string]bool{}
	for i, release := range r.Versions {
		label := fmt.Sprintf("version %d", i+1)
		if release.Version != "" {
			label = fmt.Sprintf("version %d (%s)", i+1, release.Version)
		}

		switch {
		case release.Version == "":
			issues = append(issues, label+": version string is required")
		case !versionPattern.MatchString(release.Version):
			issues = append(issues, fmt.Sprintf("%s: malformed version string", label))
		case seenVersions[release.Version]:
			issues = append(issues, fmt.Sprintf("%s: duplicate version", label))
		default:
			seenVersions[release.Version] = true
		}

		issues = append(issues, validateSourceURL(r, label, release.URL, true)...)
		issues = append(issues, validateSourceURL(r, label+" signature", release.Signature, false)...)

		if release.SHA256 == "" {
			issues = append(issues, label+": sha256 is required")
		} else if !sha256Pattern.MatchString(release.SHA256) {
			issues = append(issues, label+": sha256 must be 64 lower-case hex characters")
		}
	}

	for i, entry := range r.Patches {
		label := fmt.Sprintf("patch %d", i+1)

		switch {
		case entry.File == "" && entry.URL == "":
			issues = append(issues, label+": either file or url is required")
		case entry.File != "" && entry.URL != "":
			issues = append(issues, label+": file and url are mutually exclusive")
		case entry.File != "":
			if filepath.IsAbs(entry.File) || !filepath.IsLocal(entry.File) {
				issues = append(issues, fmt.Sprintf("%s: file %q must be relative to the recipe directory", label, entry.File))
			}
		case entry.URL != "":
			issues = append(issues, validateSourceURL(r, label, entry.URL, true)...)
			if entry.SHA256 == "" {
				issues = append(issues, label+": sha256 is required for url patches")
			}
		}

		if entry.SHA256 != "" && !sha256Pattern.MatchString(entry.SHA256) {
			issues = append(issues, label+": sha256 must be 64 lower-case hex characters")
		}
		if entry.Strip != nil && *entry.Strip < 0 {
			issues = append(issues, fmt.Sprintf("%s: strip must not be negative", label))
		}
		if entry.When != "" {
			if _, err := ParseConstraint(entry.When); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid when constraint: %v", label, err))
			}
		}
	}

	return issues
}

// validateSourceURL checks a url-valued field: required presence,
// resolvable ${...} references, and a supported scheme.
func validateSourceURL(r *Recipe, label, value string, required bool) []string {
	if value == "" {
		if required {
			return []string{label + ": url is required"}
		}
		return nil
	}

	var issues []string
	for _, name := range referencedVariables(value) {
		if name == "name" || name == "version" {
			continue
		}
		if _, ok := r.Variables[name]; !ok {
			issues = append(issues, fmt.Sprintf("%s: url references undefined variable %q", label, name))
		}
	}

	// Substitute placeholders before shape-checking so that a ${version}
	// in the path does not trip the parser.
	placeholder := variablePattern.ReplaceAllString(value, "x")
	parsed, err := url.Parse(placeholder)
	if err != nil {
		return append(issues, fmt.Sprintf("%s: malformed url: %v", label, err))
	}
	switch parsed.Scheme {
	case "http", "https", "file", "":
	default:
		issues = append(issues, fmt.Sprintf("%s: unsupported url scheme %q", label, parsed.Scheme))
	}
	return issues
}
