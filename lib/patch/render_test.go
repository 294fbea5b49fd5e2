// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{
			name:  "mercury fixture",
			input: nil, // loaded below
		},
		{
			name: "git style with preamble and trailer",
			input: []byte("From: A Developer <dev@example.org>\nSubject: fix probe casing\n\n" +
				"diff --git a/f b/f\nindex 1111111..2222222 100644\n--- a/f\n+++ b/f\n@@ -1,3 +1,3 @@ section\n a\n-b\n+B\n c\n" +
				"-- \n2.39.2\n"),
		},
		{
			name:  "no newline markers",
			input: []byte("--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n a\n-b\n\\ No newline at end of file\n+b!\n\\ No newline at end of file\n"),
		},
		{
			name:  "timestamped headers",
			input: []byte("--- f.orig\t2019-01-15 10:00:00.000000000 -0500\n+++ f\t2019-01-16 09:30:00.000000000 -0500\n@@ -1 +1 @@\n-x\n+y\n"),
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			input := testCase.input
			if input == nil {
				input = readFixture(t, "mercury-check-symbol-exists.patch")
			}

			parsed, err := Parse(input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			rendered := Render(parsed)
			if !bytes.Equal(rendered, input) {
				t.Errorf("render round trip differs:\n%s", cmp.Diff(string(input), string(rendered)))
			}
		})
	}
}

func TestRenderSynthesized(t *testing.T) {
	t.Parallel()

	synthesized := &Patch{
		Files: []*FileDiff{{
			OldPath: "a/greeting.txt",
			NewPath: "b/greeting.txt",
			Hunks: []*Hunk{{
				OldStart: 1, OldLines: 1,
				NewStart: 1, NewLines: 2,
				Lines: []Line{
					{Op: OpContext, Text: []byte("hello\n")},
					{Op: OpAdd, Text: []byte("world\n")},
				},
			}},
		}},
	}

	want := "--- a/greeting.txt\n+++ b/greeting.txt\n@@ -1 +1,2 @@\n hello\n+world\n"
	if got := string(Render(synthesized)); got != want {
		t.Errorf("rendered:\n%q\nwant:\n%q", got, want)
	}
}

func TestStat(t *testing.T) {
	t.Parallel()

	parsed, err := Parse(readFixture(t, "mercury-check-symbol-exists.patch"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []FileStat{{Path: "b/src/util/CMakeLists.txt", Added: 3, Deleted: 2}}
	if diff := cmp.Diff(want, Stat(parsed)); diff != "" {
		t.Errorf("stat mismatch (-want +got):\n%s", diff)
	}
}
