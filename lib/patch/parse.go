// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// hunkHeaderPattern matches "@@ -l[,n] +l[,n] @@ section". Counts
// default to 1 when omitted.
var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// ParseFile reads and parses a patch file from disk.
func ParseFile(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch file: %w", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return parsed, nil
}

// Parse parses unified diff text into a Patch. Text before the first
// file header and between file diffs (diff command lines, index lines,
// commit messages) is preserved as preamble so Render can round-trip
// the input. A patch containing no file diffs is an error.
func Parse(data []byte) (*Patch, error) {
	lines := splitKeepEnds(data)
	parsed := &Patch{}

	var preamble []byte
	i := 0
	for i < len(lines) {
		if !isFileHeaderAt(lines, i) {
			preamble = append(preamble, lines[i]...)
			i++
			continue
		}

		fileDiff := &FileDiff{Preamble: preamble}
		preamble = nil

		fileDiff.rawOldHeader = lines[i]
		fileDiff.OldPath, fileDiff.OldTime = parseFileHeader(lines[i], "--- ")
		fileDiff.rawNewHeader = lines[i+1]
		fileDiff.NewPath, fileDiff.NewTime = parseFileHeader(lines[i+1], "+++ ")
		i += 2

		for i < len(lines) && bytes.HasPrefix(lines[i], []byte("@@ -")) {
			hunk, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, fmt.Errorf("file %s, hunk #%d: %w", fileDiff.OldPath, len(fileDiff.Hunks)+1, err)
			}
			fileDiff.Hunks = append(fileDiff.Hunks, hunk)
			i = next
		}
		if len(fileDiff.Hunks) == 0 {
			return nil, fmt.Errorf("file %s: no hunks after file header", fileDiff.OldPath)
		}
		parsed.Files = append(parsed.Files, fileDiff)
	}

	if len(parsed.Files) == 0 {
		return nil, fmt.Errorf("no file diffs found")
	}
	parsed.Trailer = preamble
	return parsed, nil
}

// isFileHeaderAt reports whether lines[i] begins a ---/+++ file header
// pair. Requiring both lines prevents misreading "--- " text in commit
// messages or deleted lines of surrounding prose as a header.
func isFileHeaderAt(lines [][]byte, i int) bool {
	return i+1 < len(lines) &&
		bytes.HasPrefix(lines[i], []byte("--- ")) &&
		bytes.HasPrefix(lines[i+1], []byte("+++ "))
}

// parseFileHeader extracts the path and optional tab-separated
// timestamp from a ---/+++ header line. Quoted paths are unquoted.
func parseFileHeader(line []byte, prefix string) (path, timestamp string) {
	rest := strings.TrimSuffix(string(line[len(prefix):]), "\n")
	if tab := strings.IndexByte(rest, '\t'); tab >= 0 {
		path, timestamp = rest[:tab], rest[tab+1:]
	} else {
		path = rest
	}
	if strings.HasPrefix(path, `"`) {
		if unquoted, err := strconv.Unquote(path); err == nil {
			path = unquoted
		}
	}
	return path, timestamp
}

// parseHunk parses one @@ header and its body starting at lines[i].
// The body is consumed until the declared old and new line counts are
// both satisfied; running past end of input or hitting a line that
// cannot belong to the hunk is an error.
func parseHunk(lines [][]byte, i int) (*Hunk, int, error) {
	header := bytes.TrimSuffix(lines[i], []byte("\n"))
	match := hunkHeaderPattern.FindSubmatch(header)
	if match == nil {
		return nil, 0, fmt.Errorf("malformed hunk header %q", header)
	}

	hunk := &Hunk{
		OldStart:  mustAtoi(match[1]),
		OldLines:  countOrOne(match[2]),
		NewStart:  mustAtoi(match[3]),
		NewLines:  countOrOne(match[4]),
		Section:   strings.TrimPrefix(string(match[5]), " "),
		rawHeader: lines[i],
	}
	i++

	oldSeen, newSeen := 0, 0
	for oldSeen < hunk.OldLines || newSeen < hunk.NewLines {
		if i >= len(lines) {
			return nil, 0, fmt.Errorf("hunk truncated: got %d/%d old and %d/%d new lines",
				oldSeen, hunk.OldLines, newSeen, hunk.NewLines)
		}
		line := lines[i]
		i++

		if line[0] == '\\' {
			if len(hunk.Lines) == 0 {
				return nil, 0, fmt.Errorf("no-newline marker before any hunk line")
			}
			markNoEOL(&hunk.Lines[len(hunk.Lines)-1])
			continue
		}

		op, text := splitBodyLine(line)
		switch op {
		case OpContext:
			oldSeen++
			newSeen++
		case OpDelete:
			oldSeen++
		case OpAdd:
			newSeen++
		default:
			return nil, 0, fmt.Errorf("unexpected line %q inside hunk", bytes.TrimSuffix(line, []byte("\n")))
		}
		if oldSeen > hunk.OldLines || newSeen > hunk.NewLines {
			return nil, 0, fmt.Errorf("hunk body exceeds declared counts (-%d,+%d)", hunk.OldLines, hunk.NewLines)
		}
		hunk.Lines = append(hunk.Lines, Line{Op: op, Text: text})
	}

	// A trailing no-newline marker binds to the final body line.
	if i < len(lines) && len(lines[i]) > 0 && lines[i][0] == '\\' {
		markNoEOL(&hunk.Lines[len(hunk.Lines)-1])
		i++
	}
	return hunk, i, nil
}

// splitBodyLine separates the operation byte from the line text. A
// bare newline is tolerated as an empty context line; some tools trim
// the single space from blank context lines.
func splitBodyLine(line []byte) (LineOp, []byte) {
	if bytes.Equal(line, []byte("\n")) {
		return OpContext, line
	}
	switch line[0] {
	case ' ', '+', '-':
		return LineOp(line[0]), line[1:]
	}
	return 0, nil
}

// markNoEOL records a "\ No newline at end of file" marker on the
// preceding body line by stripping its terminator.
func markNoEOL(line *Line) {
	line.Text = bytes.TrimSuffix(line.Text, []byte("\n"))
	line.NoEOL = true
}

// splitKeepEnds splits data into lines that retain their trailing
// newline. A final line without a terminator is returned as-is.
func splitKeepEnds(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		end := bytes.IndexByte(data, '\n')
		if end < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:end+1])
		data = data[end+1:]
	}
	return lines
}

func mustAtoi(digits []byte) int {
	value, _ := strconv.Atoi(string(digits))
	return value
}

// countOrOne returns the parsed count, or 1 when the header omitted it.
func countOrOne(digits []byte) int {
	if len(digits) == 0 {
		return 1
	}
	return mustAtoi(digits)
}
