// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options control patch application.
type Options struct {
	// Strip removes this many leading path components from diff paths
	// before resolving targets, counting slashes the way patch -p
	// does. Zero uses paths as written.
	Strip int

	// Reverse un-applies the patch: additions delete, deletions add,
	// and old/new paths swap roles.
	Reverse bool

	// Fuzz is the maximum number of leading and trailing context
	// lines a hunk may ignore to find a match. Zero requires every
	// context line to match byte for byte.
	Fuzz int

	// DryRun verifies that every hunk applies without writing
	// anything back.
	DryRun bool
}

// HunkResult describes how one hunk landed.
type HunkResult struct {
	// Offset is the distance in lines between the hunk's stated
	// position and where it matched.
	Offset int

	// Fuzz is the number of edge context lines that were ignored to
	// make the match. Zero for an exact match.
	Fuzz int
}

// Result describes the application of one file diff.
type Result struct {
	// Path is the strip-adjusted target path.
	Path string

	Hunks []HunkResult

	// Created and Deleted report whole-file creation and deletion.
	Created bool
	Deleted bool
}

// TargetPath resolves the path a diff applies to: the old side (the
// new side for creations, swapped under Reverse) with Strip leading
// components removed.
func (d *FileDiff) TargetPath(opts Options) (string, error) {
	oldPath, newPath := d.OldPath, d.NewPath
	if opts.Reverse {
		oldPath, newPath = newPath, oldPath
	}
	source := oldPath
	if source == DevNull {
		source = newPath
	}
	if source == DevNull {
		return "", fmt.Errorf("diff has /dev/null on both sides")
	}
	return StripPrefix(source, opts.Strip)
}

// StripPrefix removes strip leading path components, counting slashes
// like patch -p: a run of adjacent slashes counts as one, and a
// leading slash begins the first component.
func StripPrefix(path string, strip int) (string, error) {
	if path == DevNull || strip <= 0 {
		return path, nil
	}
	rest := path
	for i := 0; i < strip; i++ {
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return "", fmt.Errorf("path %q does not have %d components to strip", path, strip)
		}
		rest = rest[slash+1:]
		for strings.HasPrefix(rest, "/") {
			rest = rest[1:]
		}
	}
	if rest == "" {
		return "", fmt.Errorf("path %q is empty after stripping %d components", path, strip)
	}
	return rest, nil
}

// Apply applies a single file diff to content and returns the patched
// bytes. It is a pure function: content is the old file (nil for a
// creation diff) and the returned slice is the new file. Hunks apply
// in order at their stated positions; when context does not match
// there, the surrounding lines are searched for an exact match and
// the distance is recorded in the Result. The first hunk that cannot
// be placed aborts the application with an *ApplyError.
func Apply(content []byte, fileDiff *FileDiff, opts Options) ([]byte, *Result, error) {
	targetPath, err := fileDiff.TargetPath(opts)
	if err != nil {
		return nil, nil, err
	}

	creates, deletes := fileDiff.CreatesFile(), fileDiff.DeletesFile()
	if opts.Reverse {
		creates, deletes = deletes, creates
	}
	result := &Result{Path: targetPath, Created: creates, Deleted: deletes}

	lines := splitKeepEnds(content)
	var output [][]byte
	cursor := 0
	lastOffset := 0

	for hunkIndex, hunk := range fileDiff.Hunks {
		preImage, postImage := hunk.images(opts.Reverse)
		stated := hunk.statedIndex(opts.Reverse)
		target := stated + lastOffset
		if target < cursor {
			target = cursor
		}

		matchIndex, fuzzUsed, found := findHunk(lines, cursor, target, hunk, preImage, opts)
		if !found {
			reason := fmt.Sprintf("context mismatch at line %d", target+1)
			if alreadyApplied(lines, cursor, target, preImage, postImage) {
				reason += " (hunk already applied?)"
			}
			return nil, nil, &ApplyError{File: targetPath, Hunk: hunkIndex + 1, Reason: reason}
		}

		trimLead := min(fuzzUsed, hunk.leadingContext())
		trimTrail := min(fuzzUsed, hunk.trailingContext())
		preMatched := preImage[trimLead : len(preImage)-trimTrail]
		postMatched := postImage[trimLead : len(postImage)-trimTrail]

		output = append(output, lines[cursor:matchIndex]...)
		output = append(output, postMatched...)
		cursor = matchIndex + len(preMatched)

		lastOffset = (matchIndex - trimLead) - stated
		result.Hunks = append(result.Hunks, HunkResult{Offset: lastOffset, Fuzz: fuzzUsed})
	}

	output = append(output, lines[cursor:]...)
	return bytes.Join(output, nil), result, nil
}

// statedIndex converts the hunk's declared start into a 0-based index
// into the old file. A zero-length old side means insertion after the
// stated line, so the index is the stated line itself.
func (h *Hunk) statedIndex(reverse bool) int {
	start, count := h.OldStart, h.OldLines
	if reverse {
		start, count = h.NewStart, h.NewLines
	}
	if count == 0 {
		return start
	}
	if start < 1 {
		return 0
	}
	return start - 1
}

// images returns the hunk's old-side and new-side line text, swapped
// when applying in reverse.
func (h *Hunk) images(reverse bool) (preImage, postImage [][]byte) {
	for _, line := range h.Lines {
		op := line.Op
		if reverse && op != OpContext {
			if op == OpAdd {
				op = OpDelete
			} else {
				op = OpAdd
			}
		}
		switch op {
		case OpContext:
			preImage = append(preImage, line.Text)
			postImage = append(postImage, line.Text)
		case OpDelete:
			preImage = append(preImage, line.Text)
		case OpAdd:
			postImage = append(postImage, line.Text)
		}
	}
	return preImage, postImage
}

// leadingContext counts the context lines before the first change.
func (h *Hunk) leadingContext() int {
	count := 0
	for _, line := range h.Lines {
		if line.Op != OpContext {
			break
		}
		count++
	}
	return count
}

// trailingContext counts the context lines after the last change.
func (h *Hunk) trailingContext() int {
	count := 0
	for i := len(h.Lines) - 1; i >= 0; i-- {
		if h.Lines[i].Op != OpContext {
			break
		}
		count++
	}
	return count
}

// findHunk locates the hunk's pre-image in lines at or after cursor,
// preferring the lowest fuzz level and the smallest distance from
// target. A pure insertion (empty pre-image) has nothing to anchor on
// and must land exactly at target.
func findHunk(lines [][]byte, cursor, target int, hunk *Hunk, preImage [][]byte, opts Options) (matchIndex, fuzzUsed int, found bool) {
	if len(preImage) == 0 {
		if target >= cursor && target <= len(lines) {
			return target, 0, true
		}
		return 0, 0, false
	}

	leading, trailing := hunk.leadingContext(), hunk.trailingContext()
	for fuzz := 0; fuzz <= opts.Fuzz; fuzz++ {
		trimLead, trimTrail := min(fuzz, leading), min(fuzz, trailing)
		// An all-context hunk can have its trims overlap; stop before
		// the anchor shrinks to nothing.
		if trimLead+trimTrail >= len(preImage) {
			break
		}
		image := preImage[trimLead : len(preImage)-trimTrail]
		if index, ok := searchAround(lines, cursor, target+trimLead, image); ok {
			return index, fuzz, true
		}
	}
	return 0, 0, false
}

// searchAround looks for image at target, then at increasing
// distances alternating backward and forward, bounded below by cursor
// so hunks cannot overlap a region an earlier hunk consumed.
func searchAround(lines [][]byte, cursor, target int, image [][]byte) (int, bool) {
	if target < cursor {
		target = cursor
	}
	if matchAt(lines, target, image) {
		return target, true
	}
	for distance := 1; ; distance++ {
		backward, forward := target-distance, target+distance
		backwardValid := backward >= cursor
		forwardValid := forward+len(image) <= len(lines)
		if !backwardValid && !forwardValid {
			return 0, false
		}
		if backwardValid && matchAt(lines, backward, image) {
			return backward, true
		}
		if forwardValid && matchAt(lines, forward, image) {
			return forward, true
		}
	}
}

// matchAt reports whether image occurs at index, byte for byte.
func matchAt(lines [][]byte, index int, image [][]byte) bool {
	if index < 0 || index+len(image) > len(lines) {
		return false
	}
	for offset, imageLine := range image {
		if !bytes.Equal(lines[index+offset], imageLine) {
			return false
		}
	}
	return true
}

// alreadyApplied reports whether the hunk's post-image is present
// near target, which means the file already contains the change.
func alreadyApplied(lines [][]byte, cursor, target int, preImage, postImage [][]byte) bool {
	if len(postImage) == 0 || imagesEqual(preImage, postImage) {
		return false
	}
	_, found := searchAround(lines, cursor, target, postImage)
	return found
}

func imagesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ApplyFiles applies every file diff in the patch against dir,
// rewriting targets in place. Writes are atomic (temp file and
// rename) and keep the original file mode. Application stops at the
// first file that fails; the returned results cover the files
// processed before the failure. Under DryRun every diff is verified
// and nothing is written.
func ApplyFiles(dir string, p *Patch, opts Options) ([]*Result, error) {
	results := make([]*Result, 0, len(p.Files))
	for _, fileDiff := range p.Files {
		result, err := applyFile(dir, fileDiff, opts)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func applyFile(dir string, fileDiff *FileDiff, opts Options) (*Result, error) {
	targetPath, err := fileDiff.TargetPath(opts)
	if err != nil {
		return nil, err
	}
	if !filepath.IsLocal(targetPath) {
		return nil, &ApplyError{File: targetPath, Reason: "path escapes the target directory"}
	}
	absolutePath := filepath.Join(dir, targetPath)

	creates, deletes := fileDiff.CreatesFile(), fileDiff.DeletesFile()
	if opts.Reverse {
		creates, deletes = deletes, creates
	}

	var content []byte
	mode := os.FileMode(0o644)
	switch info, statErr := os.Stat(absolutePath); {
	case statErr == nil && creates:
		return nil, &ApplyError{File: targetPath, Reason: "target already exists"}
	case statErr == nil:
		mode = info.Mode().Perm()
		content, err = os.ReadFile(absolutePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", absolutePath, err)
		}
	case os.IsNotExist(statErr) && !creates:
		return nil, &ApplyError{File: targetPath, Reason: "target file does not exist"}
	case !os.IsNotExist(statErr):
		return nil, fmt.Errorf("stat %s: %w", absolutePath, statErr)
	}

	patched, result, err := Apply(content, fileDiff, opts)
	if err != nil {
		return nil, err
	}
	if deletes && len(patched) > 0 {
		return nil, &ApplyError{File: targetPath, Reason: "deletion leaves content behind"}
	}
	if opts.DryRun {
		return result, nil
	}

	if deletes {
		if err := os.Remove(absolutePath); err != nil {
			return nil, fmt.Errorf("removing %s: %w", absolutePath, err)
		}
		return result, nil
	}
	if creates {
		if err := os.MkdirAll(filepath.Dir(absolutePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", absolutePath, err)
		}
	}
	if err := writeFileAtomic(absolutePath, patched, mode); err != nil {
		return nil, fmt.Errorf("writing %s: %w", absolutePath, err)
	}
	return result, nil
}

// writeFileAtomic writes data to a temporary file in the same
// directory and renames it over path, so a crash mid-write never
// leaves a half-patched file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), ".patch-*")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Chmod(mode); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	return os.Rename(temporaryPath, path)
}
