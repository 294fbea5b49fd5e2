// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/config"
	libpatch "github.com/quarry-build/quarry/lib/patch"
)

// applyParams holds the parameters for the patch apply command.
type applyParams struct {
	Config    string `flag:"config"      desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	Directory string `flag:"directory,d" desc:"directory to apply the patch in" default:"."`
	Strip     int    `flag:"strip,p"     desc:"leading path components to strip from diff paths" default:"1"`
	Reverse   bool   `flag:"reverse,R"   desc:"un-apply the patch"`
	DryRun    bool   `flag:"dry-run"     desc:"verify every hunk applies without writing anything"`
	Fuzz      int    `flag:"fuzz"        desc:"context lines a hunk may ignore at its edges to match"`
}

// applyCommand returns the "apply" subcommand.
func applyCommand() *cli.Command {
	var params applyParams
	var flags *pflag.FlagSet

	return &cli.Command{
		Name:    "apply",
		Summary: "Apply a unified diff to a directory",
		Description: `Apply a patch file to a directory tree.

Hunks apply at their stated line numbers when the context matches
there, and are otherwise searched for nearby; the applied offset is
reported. A hunk whose context cannot be found anywhere fails the
whole run with the failing file and hunk number, and no later file is
touched. Files already written stay written; rerunning after fixing
the patch reports "already applied" context mismatches.

--strip and --fuzz default to the patch section of the configuration
when not given on the command line.`,
		Usage: "quarry patch apply <patch> [flags]",
		Examples: []cli.Example{
			{
				Description: "Apply a git-style patch (a/ b/ prefixes) in place",
				Command:     "quarry patch apply fix-build.patch",
			},
			{
				Description: "Apply a -p0 patch to an unpacked source tree",
				Command:     "quarry patch apply --strip 0 --directory mercury-1.0.1 local.patch",
			},
			{
				Description: "Back a patch out again",
				Command:     "quarry patch apply --reverse fix-build.patch",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags = cli.FlagsFromParams("apply", &params)
			return flags
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one patch file, got %d arguments", len(args)).
					WithHint("Usage: quarry patch apply <patch> [flags]")
			}

			cfg, err := config.Load(params.Config)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			opts := libpatch.Options{
				Strip:   params.Strip,
				Reverse: params.Reverse,
				DryRun:  params.DryRun,
				Fuzz:    params.Fuzz,
			}
			if !flags.Changed("strip") {
				opts.Strip = cfg.Patch.Strip
			}
			if !flags.Changed("fuzz") {
				opts.Fuzz = cfg.Patch.Fuzz
			}

			parsed, err := libpatch.ParseFile(args[0])
			if err != nil {
				return err
			}

			results, applyErr := libpatch.ApplyFiles(params.Directory, parsed, opts)
			reportResults(os.Stdout, results, params.DryRun)
			if applyErr != nil {
				// The apply error carries the failing file and hunk;
				// results already told the user how far it got.
				return applyErr
			}

			logger.Debug("patch applied",
				"patch", args[0],
				"directory", params.Directory,
				"files", len(results),
				"dry_run", params.DryRun,
			)
			return nil
		},
	}
}

// reportResults prints one line per patched file, with hunk placement
// detail for anything that did not land exactly where the patch said.
func reportResults(w io.Writer, results []*libpatch.Result, dryRun bool) {
	verb := "patched"
	if dryRun {
		verb = "would patch"
	}
	for _, result := range results {
		suffix := ""
		switch {
		case result.Created:
			suffix = " (new file)"
		case result.Deleted:
			suffix = " (deleted)"
		}
		fmt.Fprintf(w, "%s %s%s\n", verb, result.Path, suffix)

		for index, hunk := range result.Hunks {
			if hunk.Offset == 0 && hunk.Fuzz == 0 {
				continue
			}
			detail := fmt.Sprintf("  hunk #%d applied", index+1)
			if hunk.Offset != 0 {
				detail += fmt.Sprintf(" at offset %+d lines", hunk.Offset)
			}
			if hunk.Fuzz != 0 {
				detail += fmt.Sprintf(" with fuzz %d", hunk.Fuzz)
			}
			fmt.Fprintln(w, detail)
		}
	}
}
