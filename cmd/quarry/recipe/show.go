// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	librecipe "github.com/quarry-build/quarry/lib/recipe"
)

// showParams holds the parameters for the recipe show command.
type showParams struct {
	Version string `flag:"version,V" desc:"inspect this release instead of the latest"`
}

// showCommand returns the "show" subcommand.
func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Render a recipe for human reading",
		Description: `Print a recipe's metadata, the selected release, and its patches.

The release shown is the latest by version ordering unless --version
picks another one. Source and signature URLs print fully expanded,
with ${name}, ${version}, and recipe variables substituted, so the
output shows exactly what a fetch would download.

The description renders as styled markdown when standard output is a
terminal and as plain text otherwise.`,
		Usage: "quarry recipe show <recipe> [flags]",
		Examples: []cli.Example{
			{
				Description: "Show the latest release of a recipe",
				Command:     "quarry recipe show recipes/mercury.jsonc",
			},
			{
				Description: "Show an older release and its patches",
				Command:     "quarry recipe show --version 1.0.0 recipes/mercury.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one recipe file, got %d arguments", len(args)).
					WithHint("Usage: quarry recipe show <recipe> [flags]")
			}

			parsed, err := librecipe.ReadFile(args[0])
			if err != nil {
				return err
			}
			// Recipes normally carry their name; drafts may not yet.
			if parsed.Name == "" {
				parsed.Name = librecipe.NameFromPath(args[0])
			}

			var release *librecipe.Version
			if params.Version != "" {
				found, ok := parsed.FindVersion(params.Version)
				if !ok {
					return cli.NotFound("recipe %q has no version %q", parsed.Name, params.Version).
						WithHint("Available: " + strings.Join(parsed.SortedVersions(), ", "))
				}
				release = found
			} else {
				release = parsed.Latest()
			}

			fd := int(os.Stdout.Fd())
			interactive := term.IsTerminal(fd)
			width := 80
			if interactive {
				if w, _, err := term.GetSize(fd); err == nil && w > 0 {
					width = w
				}
			}
			return printRecipe(os.Stdout, parsed, release, interactive, width)
		},
	}
}

// printRecipe writes the human-readable rendering of a recipe. The
// release may be nil for a recipe with no versions. When
// renderMarkdown is set the description renders as styled terminal
// markdown at the given width; otherwise it prints verbatim.
func printRecipe(w io.Writer, r *librecipe.Recipe, release *librecipe.Version, renderMarkdown bool, width int) error {
	tabs := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tabs, "name:\t%s\n", r.Name)
	if r.Homepage != "" {
		fmt.Fprintf(tabs, "homepage:\t%s\n", r.Homepage)
	}
	fmt.Fprintf(tabs, "versions:\t%s\n", formatVersionList(r))

	if release != nil {
		sourceURL, err := r.SourceURL(release)
		if err != nil {
			return fmt.Errorf("expanding source url for %s: %w", release.Version, err)
		}
		fmt.Fprintf(tabs, "version:\t%s\n", release.Version)
		fmt.Fprintf(tabs, "url:\t%s\n", sourceURL)
		fmt.Fprintf(tabs, "sha256:\t%s\n", release.SHA256)
		if release.Signature != "" {
			signatureURL, err := r.SignatureURL(release)
			if err != nil {
				return fmt.Errorf("expanding signature url for %s: %w", release.Version, err)
			}
			fmt.Fprintf(tabs, "signature:\t%s\n", signatureURL)
		}

		patches, err := r.PatchesFor(release.Version)
		if err != nil {
			return fmt.Errorf("selecting patches for %s: %w", release.Version, err)
		}
		for index, entry := range patches {
			key := ""
			if index == 0 {
				key = "patches:"
			}
			fmt.Fprintf(tabs, "%s\t%s\n", key, formatPatch(entry))
		}
	}
	if err := tabs.Flush(); err != nil {
		return err
	}

	if r.Description != "" {
		fmt.Fprintln(w)
		if renderMarkdown {
			fmt.Fprintln(w, renderTerminalMarkdown(r.Description, width))
		} else {
			fmt.Fprintln(w, strings.TrimRight(r.Description, "\n"))
		}
	}
	return nil
}

// formatVersionList renders the version strings newest first, marking
// the latest release.
func formatVersionList(r *librecipe.Recipe) string {
	if len(r.Versions) == 0 {
		return "(none)"
	}
	latest := r.Latest()

	parts := make([]string, 0, len(r.Versions))
	for _, version := range r.SortedVersions() {
		if latest != nil && version == latest.Version {
			parts = append(parts, version+" (latest)")
			continue
		}
		parts = append(parts, version)
	}
	return strings.Join(parts, ", ")
}

// formatPatch renders one patch entry with its effective settings.
func formatPatch(entry librecipe.PatchEntry) string {
	detail := fmt.Sprintf("strip %d", entry.StripLevel())
	if entry.Reverse {
		detail += ", reversed"
	}
	if entry.When != "" {
		detail += ", when " + entry.When
	}
	return fmt.Sprintf("%s (%s)", entry.Source(), detail)
}
