// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cmakescan

import (
	"fmt"
	"strings"
)

// checkModules maps the canonical lower-case spelling of each CMake
// probe command to the module that must be included before use.
var checkModules = map[string]string{
	"check_c_source_compiles": "CheckCSourceCompiles",
	"check_function_exists":   "CheckFunctionExists",
	"check_include_file":      "CheckIncludeFile",
	"check_include_files":     "CheckIncludeFiles",
	"check_library_exists":    "CheckLibraryExists",
	"check_symbol_exists":     "CheckSymbolExists",
	"check_type_size":         "CheckTypeSize",
}

// Audit inspects a scanned script for probe-directive problems: the
// legacy upper-case spellings, probes whose module is never included
// or included only after first use, and duplicate includes. Issues
// come back as human-readable strings in script order; an empty
// slice means a clean script.
//
// These are exactly the defects that make configure-time probes
// silently misbehave across CMake versions, so a script that audits
// clean before patching usually does not need the patch.
func Audit(script *Script) []string {
	var issues []string

	firstInclude := map[string]int{}
	for _, directive := range script.Directives {
		if !strings.EqualFold(directive.Name, "include") || len(directive.Args) == 0 {
			continue
		}
		module := directive.Args[0]
		if _, ok := firstInclude[module]; !ok {
			firstInclude[module] = directive.Line
		}
	}

	seenInclude := map[string]int{}
	missingReported := map[string]bool{}
	for _, directive := range script.Directives {
		if strings.EqualFold(directive.Name, "include") && len(directive.Args) > 0 {
			module := directive.Args[0]
			if firstLine, ok := seenInclude[module]; ok {
				issues = append(issues, fmt.Sprintf("line %d: duplicate include(%s), first included at line %d",
					directive.Line, module, firstLine))
			} else {
				seenInclude[module] = directive.Line
			}
			continue
		}

		canonical := strings.ToLower(directive.Name)
		module, isProbe := checkModules[canonical]
		if !isProbe {
			continue
		}
		if directive.Name != canonical {
			issues = append(issues, fmt.Sprintf("line %d: %s: canonical spelling is %s",
				directive.Line, directive.Name, canonical))
		}
		if missingReported[canonical] {
			continue
		}
		includeLine, included := firstInclude[module]
		switch {
		case !included:
			issues = append(issues, fmt.Sprintf("line %d: %s used without include(%s)",
				directive.Line, canonical, module))
			missingReported[canonical] = true
		case includeLine > directive.Line:
			issues = append(issues, fmt.Sprintf("line %d: include(%s) appears after first use of %s",
				includeLine, module, canonical))
			missingReported[canonical] = true
		}
	}

	return issues
}
