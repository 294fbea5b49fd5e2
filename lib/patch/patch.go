// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch parses, applies, and renders unified diff patches.
//
// The model is line-oriented and byte-exact: file content is split into
// lines that keep their terminators, and hunk context must match the
// target byte for byte (no whitespace normalization). Application is
// synchronous and fatal on the first mismatch; callers that want
// tolerance for drifted line numbers get it from the positional search
// built into Apply, and may opt into context fuzzing explicitly.
//
// The parser accepts the output of diff -u, git diff, and hand-written
// patches: optional prologue text, ---/+++ file headers with optional
// timestamps, @@ hunk headers with optional section names, and
// "\ No newline at end of file" markers.
package patch

import (
	"errors"
	"fmt"
)

// LineOp classifies a hunk body line.
type LineOp byte

const (
	// OpContext is a line present in both old and new file.
	OpContext LineOp = ' '
	// OpAdd is a line present only in the new file.
	OpAdd LineOp = '+'
	// OpDelete is a line present only in the old file.
	OpDelete LineOp = '-'
)

// Line is one body line of a hunk. Text includes the trailing newline
// except when NoEOL is set, which records a "\ No newline at end of
// file" marker after this line in the patch.
type Line struct {
	Op    LineOp
	Text  []byte
	NoEOL bool
}

// Hunk is one @@ block of a file diff. OldStart and NewStart are
// 1-based line numbers into the old and new file; OldLines and
// NewLines count the lines the hunk spans on each side. A zero
// OldLines means a pure insertion after old line OldStart.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int

	// Section is the optional text after the closing @@, typically
	// the enclosing function or section name.
	Section string

	Lines []Line

	// rawHeader preserves the header line exactly as parsed so that
	// Render round-trips byte for byte. Empty for synthesized hunks.
	rawHeader []byte
}

// FileDiff is the set of hunks against a single file. OldPath and
// NewPath are the paths as written in the patch, prefix and all;
// TargetPath applies strip semantics. OldTime and NewTime hold the
// optional tab-separated timestamp text from the file headers.
type FileDiff struct {
	OldPath string
	NewPath string
	OldTime string
	NewTime string

	Hunks []*Hunk

	// Preamble is the raw text between the previous file diff (or the
	// start of the patch) and this diff's --- header: diff command
	// lines, index lines, commit message text. Preserved for Render.
	Preamble []byte

	// rawOldHeader and rawNewHeader preserve the ---/+++ lines as
	// parsed. Empty for synthesized diffs.
	rawOldHeader []byte
	rawNewHeader []byte
}

// Patch is an ordered collection of file diffs. Trailer holds any
// text after the last hunk (version trailers from git format-patch,
// mail signatures), preserved for Render.
type Patch struct {
	Files   []*FileDiff
	Trailer []byte
}

// DevNull is the path written in file headers for file creation and
// deletion diffs.
const DevNull = "/dev/null"

// CreatesFile reports whether the diff creates its target (the old
// side is /dev/null).
func (d *FileDiff) CreatesFile() bool { return d.OldPath == DevNull }

// DeletesFile reports whether the diff deletes its target (the new
// side is /dev/null).
func (d *FileDiff) DeletesFile() bool { return d.NewPath == DevNull }

// ApplyError reports a patch that could not be applied: missing target,
// context that does not match the file, or a hunk whose result is
// already present. It identifies the failing file and hunk.
type ApplyError struct {
	// File is the target path the failure occurred on.
	File string
	// Hunk is the 1-based index of the failing hunk within its file
	// diff, or 0 when the failure is not specific to a hunk.
	Hunk int
	// Reason describes the mismatch.
	Reason string
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	if e.Hunk == 0 {
		return fmt.Sprintf("patch: cannot apply to %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("patch: cannot apply hunk #%d to %s: %s", e.Hunk, e.File, e.Reason)
}

// IsApplyError reports whether err is or wraps an *ApplyError.
func IsApplyError(err error) bool {
	var applyError *ApplyError
	return errors.As(err, &applyError)
}
