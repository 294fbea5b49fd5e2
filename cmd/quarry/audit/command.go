// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements "quarry audit": checking CMake build
// scripts for configure-probe defects without staging anything.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/cmakescan"
)

// Command returns the "audit" command.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "Check CMake scripts for probe defects",
		Description: `Scan CMake build scripts and report configure-probe problems:
legacy upper-case probe spellings like CHECK_SYMBOL_EXISTS, probes
whose module is never included or included only after first use, and
duplicate includes.

Each problem is printed as one line prefixed with the file path, and a
clean file reports "ok". The exit status is nonzero when any file has
problems, so the command doubles as a pre-patch gate: a tree that
audits clean usually does not need a probe patch.`,
		Usage: "quarry audit <script>...",
		Examples: []cli.Example{
			{
				Description: "Audit one build script",
				Command:     "quarry audit src/util/CMakeLists.txt",
			},
			{
				Description: "Audit an unpacked source tree's scripts",
				Command:     "quarry audit $(find stage/source -name CMakeLists.txt)",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("expected at least one script to audit").
					WithHint("Usage: quarry audit <script>...")
			}
			return auditFiles(os.Stdout, args, logger)
		},
	}
}

// auditFiles scans each script and reports its issues, one line per
// issue. Unreadable or unscannable files count as audit failures, not
// hard errors: the point of the command is to report every problem
// file in one run.
func auditFiles(w io.Writer, paths []string, logger *slog.Logger) error {
	problemFiles := 0
	for _, path := range paths {
		script, err := cmakescan.ScanFile(path)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", path, err)
			problemFiles++
			continue
		}
		issues := cmakescan.Audit(script)
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s: ok\n", path)
			continue
		}
		for _, issue := range issues {
			fmt.Fprintf(w, "%s: %s\n", path, issue)
		}
		problemFiles++
	}
	logger.Debug("scripts audited", "total", len(paths), "failed", problemFiles)

	if problemFiles > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
