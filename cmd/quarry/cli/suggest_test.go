// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1}, // substitution
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"abc", "bac", 2}, // transposition (counted as 2 edits)
		{"kitten", "sitting", 3},
		{"stage", "stgae", 2},
		{"fetch", "fetc", 1},
		{"audit", "audti", 2},
		{"reverse", "revrese", 2},
	}

	for _, test := range tests {
		t.Run(test.a+"/"+test.b, func(t *testing.T) {
			got := levenshtein(test.a, test.b)
			if got != test.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestLevenshtein_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"abc", "abd"},
		{"stage", "steag"},
		{"recipe", "recpie"},
	}

	for _, pair := range pairs {
		forward := levenshtein(pair[0], pair[1])
		reverse := levenshtein(pair[1], pair[0])
		if forward != reverse {
			t.Errorf("levenshtein(%q, %q) = %d, but reverse = %d",
				pair[0], pair[1], forward, reverse)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "stage"},
		{Name: "fetch"},
		{Name: "audit"},
		{Name: "cache"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"stgae", "stage"},
		{"fetc", "fetch"},
		{"cahce", "cache"},
		{"zzzzzzzzz", ""}, // nothing close
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := suggestCommand(test.input, commands)
			if got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("apply", pflag.ContinueOnError)
		flagSet.Bool("reverse", false, "un-apply")
		flagSet.Bool("dry-run", false, "verify only")
		flagSet.IntP("strip", "p", 1, "strip level")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"close long flag", []string{"--revrese"}, "--reverse"},
		{"flag with value", []string{"--dryrun=true"}, "--dry-run"},
		{"defined flag skipped", []string{"--reverse", "--stirp"}, "--strip"},
		{"nothing close", []string{"--zzzzzzzzz"}, ""},
		{"no flags in args", []string{"fix.patch"}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := suggestFlag(test.args, newFlags())
			if got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
