// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"fmt"
	"regexp"
	"strings"
)

// variablePattern matches ${NAME} references in url and signature
// fields. Names are restricted to identifier characters; anything
// else passes through untouched.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SourceURL returns the release's download URL with every ${...}
// reference resolved. The built-in ${name} and ${version} always
// refer to the recipe name and the release version and cannot be
// shadowed by recipe variables.
func (r *Recipe) SourceURL(release *Version) (string, error) {
	return r.expand(release, release.URL, "url")
}

// SignatureURL resolves the release's signature URL, or returns the
// empty string when the release declares none.
func (r *Recipe) SignatureURL(release *Version) (string, error) {
	if release.Signature == "" {
		return "", nil
	}
	return r.expand(release, release.Signature, "signature")
}

func (r *Recipe) expand(release *Version, text, field string) (string, error) {
	values := make(map[string]string, len(r.Variables)+2)
	for name, value := range r.Variables {
		values[name] = value
	}
	values["name"] = r.Name
	values["version"] = release.Version

	var missing []string
	expanded := variablePattern.ReplaceAllStringFunc(text, func(reference string) string {
		name := reference[2 : len(reference)-1]
		value, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return reference
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s references undefined variables: %s", field, strings.Join(missing, ", "))
	}
	return expanded, nil
}

// referencedVariables returns the names of every ${...} reference in
// text, in order of appearance.
func referencedVariables(text string) []string {
	var names []string
	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		names = append(names, match[1])
	}
	return names
}
