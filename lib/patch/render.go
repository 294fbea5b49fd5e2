// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"fmt"
)

// Render writes the patch back out as unified diff text. Parsed
// patches render byte for byte identical to their input: preambles,
// header timestamps, and no-newline markers are all preserved.
// Synthesized patches render with composed headers.
func Render(p *Patch) []byte {
	var buffer bytes.Buffer
	for _, fileDiff := range p.Files {
		buffer.Write(fileDiff.Preamble)
		writeFileHeader(&buffer, fileDiff.rawOldHeader, "--- ", fileDiff.OldPath, fileDiff.OldTime)
		writeFileHeader(&buffer, fileDiff.rawNewHeader, "+++ ", fileDiff.NewPath, fileDiff.NewTime)
		for _, hunk := range fileDiff.Hunks {
			writeHunkHeader(&buffer, hunk)
			for _, line := range hunk.Lines {
				buffer.WriteByte(byte(line.Op))
				buffer.Write(line.Text)
				if line.NoEOL {
					buffer.WriteString("\n\\ No newline at end of file\n")
				}
			}
		}
	}
	buffer.Write(p.Trailer)
	return buffer.Bytes()
}

func writeFileHeader(buffer *bytes.Buffer, raw []byte, prefix, path, timestamp string) {
	if raw != nil {
		buffer.Write(raw)
		return
	}
	buffer.WriteString(prefix)
	buffer.WriteString(path)
	if timestamp != "" {
		buffer.WriteByte('\t')
		buffer.WriteString(timestamp)
	}
	buffer.WriteByte('\n')
}

func writeHunkHeader(buffer *bytes.Buffer, hunk *Hunk) {
	if hunk.rawHeader != nil {
		buffer.Write(hunk.rawHeader)
		return
	}
	fmt.Fprintf(buffer, "@@ -%s +%s @@", formatRange(hunk.OldStart, hunk.OldLines), formatRange(hunk.NewStart, hunk.NewLines))
	if hunk.Section != "" {
		buffer.WriteByte(' ')
		buffer.WriteString(hunk.Section)
	}
	buffer.WriteByte('\n')
}

// formatRange renders a hunk range, omitting the count when it is 1
// the way diff -u does.
func formatRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// FileStat summarizes one file diff for --stat style output.
type FileStat struct {
	// Path is the display path: the new side, or the old side for
	// deletions.
	Path string

	Added   int
	Deleted int
}

// Stat counts added and deleted lines per file.
func Stat(p *Patch) []FileStat {
	stats := make([]FileStat, 0, len(p.Files))
	for _, fileDiff := range p.Files {
		stat := FileStat{Path: fileDiff.NewPath}
		if fileDiff.DeletesFile() {
			stat.Path = fileDiff.OldPath
		}
		for _, hunk := range fileDiff.Hunks {
			for _, line := range hunk.Lines {
				switch line.Op {
				case OpAdd:
					stat.Added++
				case OpDelete:
					stat.Deleted++
				}
			}
		}
		stats = append(stats, stat)
	}
	return stats
}
