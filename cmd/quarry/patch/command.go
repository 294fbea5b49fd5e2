// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"github.com/quarry-build/quarry/cmd/quarry/cli"
)

// Command returns the "patch" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "patch",
		Summary: "Apply and inspect unified diffs",
		Description: `Work with unified diff patches directly, outside of any recipe.

Patches are parsed with the same engine staging uses: optional
prologue text, ---/+++ file headers, @@ hunk headers, and "\ No
newline at end of file" markers are all understood, and context must
match the target byte for byte unless fuzz is allowed explicitly.`,
		Subcommands: []*cli.Command{
			applyCommand(),
			showCommand(),
			viewCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Apply a patch to the current directory",
				Command:     "quarry patch apply fix-build.patch",
			},
			{
				Description: "Check whether a patch would apply, without writing",
				Command:     "quarry patch apply --dry-run --directory build/mercury-1.0.1 fix-build.patch",
			},
			{
				Description: "Summarize what a patch touches",
				Command:     "quarry patch show --stat fix-build.patch",
			},
			{
				Description: "Step through a patch hunk by hunk",
				Command:     "quarry patch view fix-build.patch",
			},
		},
	}
}
