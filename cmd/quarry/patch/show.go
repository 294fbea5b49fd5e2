// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	libpatch "github.com/quarry-build/quarry/lib/patch"
)

// showParams holds the parameters for the patch show command.
type showParams struct {
	Stat  bool   `flag:"stat"  desc:"print per-file change counts and stop"`
	Color string `flag:"color" desc:"colorize output: auto, always, never" default:"auto"`
}

// showCommand returns the "show" subcommand.
func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Summarize and print a parsed patch",
		Description: `Parse a patch and print what it would change.

The default output is a one-line summary followed by the patch text,
syntax-colored when stdout is a terminal. --stat replaces the patch
text with per-file insertion and deletion counts.`,
		Usage: "quarry patch show <patch> [flags]",
		Examples: []cli.Example{
			{
				Description: "Print a patch with colored hunks",
				Command:     "quarry patch show fix-build.patch",
			},
			{
				Description: "Per-file change counts only",
				Command:     "quarry patch show --stat fix-build.patch",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one patch file, got %d arguments", len(args)).
					WithHint("Usage: quarry patch show <patch> [flags]")
			}

			parsed, err := libpatch.ParseFile(args[0])
			if err != nil {
				return err
			}

			if params.Stat {
				printStat(os.Stdout, parsed)
				return nil
			}

			colored, err := colorEnabled(params.Color)
			if err != nil {
				return err
			}
			return renderPatch(os.Stdout, parsed, colored)
		},
	}
}

// colorEnabled resolves a --color mode against the output terminal.
func colorEnabled(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	}
	return false, cli.Validation("invalid --color mode %q: use auto, always, or never", mode)
}

// renderPatch writes a summary line and the patch text. In colored
// mode the text goes through Chroma's diff lexer; a Chroma failure
// downgrades to plain output rather than failing the command.
func renderPatch(w io.Writer, p *libpatch.Patch, colored bool) error {
	printSummary(w, p, colored)

	text := libpatch.Render(p)
	if !colored {
		_, err := w.Write(text)
		return err
	}
	if err := quick.Highlight(w, string(text), "diff", "terminal256", "monokai"); err != nil {
		_, writeErr := w.Write(text)
		return writeErr
	}
	return nil
}

// printSummary writes the one-line patch overview.
func printSummary(w io.Writer, p *libpatch.Patch, colored bool) {
	hunks := 0
	for _, fileDiff := range p.Files {
		hunks += len(fileDiff.Hunks)
	}
	added, deleted := 0, 0
	for _, stat := range libpatch.Stat(p) {
		added += stat.Added
		deleted += stat.Deleted
	}

	summary := fmt.Sprintf("%s, %s, +%d -%d",
		plural(len(p.Files), "file"), plural(hunks, "hunk"), added, deleted)
	if colored {
		// Force the color profile: with --color=always the output may
		// be piped, and auto-detection would strip the styling that
		// was asked for explicitly.
		renderer := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI256))
		renderer.SetColorProfile(termenv.ANSI256)
		summary = renderer.NewStyle().Bold(true).Render(summary)
	}
	fmt.Fprintln(w, summary)
	fmt.Fprintln(w)
}

// printStat writes git-style per-file change counts with scaled
// +/- bars.
func printStat(w io.Writer, p *libpatch.Patch) {
	stats := libpatch.Stat(p)

	widestPath, widestCount, maxChanges := 0, 1, 0
	for _, stat := range stats {
		changes := stat.Added + stat.Deleted
		if len(stat.Path) > widestPath {
			widestPath = len(stat.Path)
		}
		if width := len(fmt.Sprint(changes)); width > widestCount {
			widestCount = width
		}
		if changes > maxChanges {
			maxChanges = changes
		}
	}

	const barWidth = 40
	totalAdded, totalDeleted := 0, 0
	for _, stat := range stats {
		totalAdded += stat.Added
		totalDeleted += stat.Deleted

		changes := stat.Added + stat.Deleted
		plusLen, minusLen := stat.Added, stat.Deleted
		if maxChanges > barWidth && changes > 0 {
			scaled := changes * barWidth / maxChanges
			if scaled == 0 {
				scaled = 1
			}
			plusLen = scaled * stat.Added / changes
			minusLen = scaled - plusLen
		}

		fmt.Fprintf(w, " %-*s | %*d %s%s\n",
			widestPath, stat.Path,
			widestCount, changes,
			strings.Repeat("+", plusLen), strings.Repeat("-", minusLen))
	}

	fmt.Fprintf(w, " %s changed, %d insertions(+), %d deletions(-)\n",
		plural(len(stats), "file"), totalAdded, totalDeleted)
}

// plural formats a count with its unit, adding "s" past one.
func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
