// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cmakescan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scanFixture(t *testing.T, name string) *Script {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	script, err := Scan(data)
	if err != nil {
		t.Fatalf("scanning %s: %v", name, err)
	}
	return script
}

func TestScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []Directive
	}{
		{
			name:  "simple directive",
			input: "include(CheckSymbolExists)\n",
			want:  []Directive{{Name: "include", Args: []string{"CheckSymbolExists"}, Line: 1}},
		},
		{
			name:  "quoted and unquoted arguments",
			input: `check_include_files("sys/eventfd.h" HG_UTIL_HAS_SYSEVENTFD_H)`,
			want: []Directive{{
				Name: "check_include_files",
				Args: []string{"sys/eventfd.h", "HG_UTIL_HAS_SYSEVENTFD_H"},
				Line: 1,
			}},
		},
		{
			name:  "variables stay opaque",
			input: "set(HG_UTIL_INSTALL_LIB_DIR ${CMAKE_INSTALL_PREFIX}/lib)\n",
			want: []Directive{{
				Name: "set",
				Args: []string{"HG_UTIL_INSTALL_LIB_DIR", "${CMAKE_INSTALL_PREFIX}/lib"},
				Line: 1,
			}},
		},
		{
			name:  "comments and blank lines skipped",
			input: "# configure probes\n\nif(NOT WIN32)\n  message(STATUS \"posix\")\nendif()\n",
			want: []Directive{
				{Name: "if", Args: []string{"NOT", "WIN32"}, Line: 3},
				{Name: "message", Args: []string{"STATUS", "posix"}, Line: 4},
				{Name: "endif", Args: []string{}, Line: 5},
			},
		},
		{
			name:  "nested paren group is one argument",
			input: "if(NOT (APPLE AND WIN32))\n",
			want: []Directive{{
				Name: "if",
				Args: []string{"NOT", "(APPLE AND WIN32)"},
				Line: 1,
			}},
		},
		{
			name:  "multi line invocation",
			input: "set(SRCS\n  a.c\n  b.c\n)\n",
			want: []Directive{{
				Name: "set",
				Args: []string{"SRCS", "a.c", "b.c"},
				Line: 1,
			}},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			script, err := Scan([]byte(testCase.input))
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if diff := cmp.Diff(testCase.want, script.Directives); diff != "" {
				t.Errorf("directives mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		input         string
		wantSubstring string
	}{
		{name: "missing paren", input: "include CheckSymbolExists\n", wantSubstring: "expected ("},
		{name: "unterminated arguments", input: "set(A b\n", wantSubstring: "unterminated argument list"},
		{name: "unterminated quote", input: "set(A \"b\n", wantSubstring: "unterminated quoted argument"},
		{name: "stray paren", input: ")\n", wantSubstring: "expected a command name"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := Scan([]byte(testCase.input))
			if err == nil {
				t.Fatal("Scan succeeded, want error")
			}
			if !strings.Contains(err.Error(), testCase.wantSubstring) {
				t.Errorf("error = %q, want substring %q", err, testCase.wantSubstring)
			}
		})
	}
}

// The patched mercury script is the reference for what a correct
// probe section looks like: exactly one include(CheckSymbolExists),
// no upper-case probe spellings, and both probes carrying their
// symbol, header, and result variable untouched.
func TestPatchedMercuryScript(t *testing.T) {
	t.Parallel()

	script := scanFixture(t, "mercury-util-cmakelists-patched.txt")

	if count := script.IncludeCount("CheckSymbolExists"); count != 1 {
		t.Errorf("include(CheckSymbolExists) count = %d, want 1", count)
	}
	if count := script.Count("CHECK_SYMBOL_EXISTS"); count != 0 {
		t.Errorf("upper-case CHECK_SYMBOL_EXISTS count = %d, want 0", count)
	}
	if count := script.Count("check_symbol_exists"); count != 2 {
		t.Errorf("check_symbol_exists count = %d, want 2", count)
	}

	probes := script.Calls("check_symbol_exists")
	wantArgs := [][]string{
		{"pthread_condattr_setclock", "pthread.h", "HG_UTIL_HAS_PTHREAD_CONDATTR_SETCLOCK"},
		{"clock_gettime", "time.h", "HG_UTIL_HAS_CLOCK_GETTIME"},
	}
	for i, want := range wantArgs {
		if diff := cmp.Diff(want, probes[i].Args); diff != "" {
			t.Errorf("probe #%d args mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestBaselineMercuryScript(t *testing.T) {
	t.Parallel()

	script := scanFixture(t, "mercury-util-cmakelists.txt")

	if count := script.Count("CHECK_SYMBOL_EXISTS"); count != 2 {
		t.Errorf("upper-case CHECK_SYMBOL_EXISTS count = %d, want 2", count)
	}
	if count := script.IncludeCount("CheckSymbolExists"); count != 0 {
		t.Errorf("include(CheckSymbolExists) count = %d, want 0", count)
	}
	if count := script.CountFold("check_symbol_exists"); count != 2 {
		t.Errorf("case-insensitive probe count = %d, want 2", count)
	}
}
