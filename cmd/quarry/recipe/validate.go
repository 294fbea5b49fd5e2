// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	librecipe "github.com/quarry-build/quarry/lib/recipe"
)

// validateCommand returns the "validate" subcommand.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Check recipe files for structural problems",
		Description: `Check one or more recipe files and report every problem found.

Each problem prints on its own line as "path: problem". A recipe with
no problems prints "path: ok". The exit code is non-zero when any
recipe has problems, so the command works as a pre-commit check over a
whole recipe directory.

Validation is structural only: names, version strings, digests, URL
shapes, and patch constraints. It does not fetch anything, so a recipe
can validate cleanly and still point at a dead mirror.`,
		Usage: "quarry recipe validate <recipe>...",
		Examples: []cli.Example{
			{
				Description: "Validate a single recipe",
				Command:     "quarry recipe validate recipes/mercury.jsonc",
			},
			{
				Description: "Validate every recipe in a directory",
				Command:     "quarry recipe validate recipes/*.jsonc",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("expected at least one recipe file").
					WithHint("Usage: quarry recipe validate <recipe>...")
			}
			return validateFiles(os.Stdout, args, logger)
		},
	}
}

// validateFiles validates each recipe file and writes one line per
// problem. It returns an ExitError when any file had problems.
func validateFiles(w io.Writer, paths []string, logger *slog.Logger) error {
	problemFiles := 0
	for _, path := range paths {
		parsed, err := librecipe.ReadFile(path)
		if err != nil {
			// Unreadable or syntactically broken files count as
			// validation failures, not hard errors: the point of the
			// command is to report every bad file in one run.
			fmt.Fprintf(w, "%s: %v\n", path, err)
			problemFiles++
			continue
		}

		issues := librecipe.Validate(parsed)
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s: ok\n", path)
			continue
		}
		problemFiles++
		for _, issue := range issues {
			fmt.Fprintf(w, "%s: %s\n", path, issue)
		}
	}

	logger.Debug("recipes validated",
		"total", len(paths),
		"failed", problemFiles,
	)
	if problemFiles > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
