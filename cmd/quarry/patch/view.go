// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	libpatch "github.com/quarry-build/quarry/lib/patch"
	"github.com/quarry-build/quarry/lib/patchview"
)

// viewCommand returns the "view" subcommand. The browser model lives
// in lib/patchview so that the terminal UI dependency graph stays out
// of packages that only parse and apply patches.
func viewCommand() *cli.Command {
	return &cli.Command{
		Name:    "view",
		Summary: "Browse a patch in an interactive terminal UI",
		Description: `Open a full-screen browser over the hunks of a patch.

The left pane lists every hunk in the patch; the right pane shows the
selected hunk with its context lines. Navigate with j/k or the arrow
keys, switch panes with tab, and quit with q.`,
		Usage: "quarry patch view <patch>",
		Examples: []cli.Example{
			{
				Description: "Inspect a patch before applying it",
				Command:     "quarry patch view fix-build.patch",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one patch file, got %d arguments", len(args)).
					WithHint("Usage: quarry patch view <patch>")
			}

			parsed, err := libpatch.ParseFile(args[0])
			if err != nil {
				return err
			}
			if len(parsed.Files) == 0 {
				return cli.Validation("%s contains no file diffs", args[0])
			}

			model := patchview.New(args[0], parsed)
			program := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("running patch viewer: %w", err)
			}
			return nil
		},
	}
}
