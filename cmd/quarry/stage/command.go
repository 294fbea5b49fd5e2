// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stage implements "quarry stage": preparing a buildable
// source tree from a recipe. Fetch, verify, unpack, patch, in that
// order, with every step recorded in the install database.
package stage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/installdb"
	librecipe "github.com/quarry-build/quarry/lib/recipe"
	libstage "github.com/quarry-build/quarry/lib/stage"
)

// stageParams holds the parameters for the stage command.
type stageParams struct {
	Config     string `flag:"config"      desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	Version    string `flag:"version,V"   desc:"stage this release instead of the latest"`
	KeepFailed bool   `flag:"keep-failed" desc:"keep the stage tree on disk when patching fails"`
}

// Command returns the "stage" command.
func Command() *cli.Command {
	var params stageParams

	return &cli.Command{
		Name:    "stage",
		Summary: "Prepare a patched source tree from a recipe",
		Description: `Fetch a release archive, verify it, unpack it into a fresh stage
directory, and apply the recipe's patches in declaration order.

Downloads go through the source cache, so restaging a release already
fetched works offline. The prepared tree lands under the configured
stages directory as <name>-<version>-<id>/source, recorded in the
install database together with every applied patch.

A patch whose context does not match the source fails the whole stage;
nothing runs builds on a half-patched tree. By default the failed tree
and its database row are removed. With --keep-failed both stay, the
stage marked failed, so the mismatch can be inspected in place.`,
		Usage: "quarry stage <recipe> [flags]",
		Examples: []cli.Example{
			{
				Description: "Stage the latest release of a recipe",
				Command:     "quarry stage recipes/mercury.jsonc",
			},
			{
				Description: "Stage an older release and keep the tree if a patch fails",
				Command:     "quarry stage --version 1.0.0 --keep-failed recipes/mercury.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stage", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one recipe file, got %d arguments", len(args)).
					WithHint("Usage: quarry stage <recipe> [flags]")
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			parsed, err := librecipe.ReadFile(args[0])
			if err != nil {
				return err
			}
			if parsed.Name == "" {
				parsed.Name = librecipe.NameFromPath(args[0])
			}
			if params.Version != "" {
				if _, ok := parsed.FindVersion(params.Version); !ok {
					return cli.NotFound("recipe %q has no version %q", parsed.Name, params.Version).
						WithHint("Available: " + strings.Join(parsed.SortedVersions(), ", "))
				}
			}

			store, err := cli.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			db, err := cli.OpenDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			fetcher, err := cli.NewFetcher(cfg, logger)
			if err != nil {
				return err
			}
			keyring, err := cli.LoadKeyring(cfg)
			if err != nil {
				return err
			}

			stager, err := libstage.New(libstage.Config{
				StageRoot: cfg.Paths.Stages,
				Cache:     store,
				DB:        db,
				Fetcher:   fetcher,
				Keyring:   keyring,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			// Failed stages already on disk belong to earlier runs and
			// stay untouched; only a failure from this run is cleaned
			// up.
			before, err := db.Find(ctx, parsed.Name, installdb.StatusFailed)
			if err != nil {
				return err
			}

			prepared, err := stager.Prepare(ctx, parsed, params.Version, libstage.Options{
				RecipeDir: filepath.Dir(args[0]),
			})
			if err != nil {
				if !params.KeepFailed {
					removeNewFailures(ctx, stager, db, parsed.Name, before, logger)
				}
				return err
			}

			printStage(os.Stdout, prepared)
			return nil
		},
	}
}

// printStage reports a prepared stage: where the tree is and what was
// applied to it.
func printStage(w io.Writer, prepared *libstage.Stage) {
	fmt.Fprintf(w, "staged %s@%s\n", prepared.Package, prepared.Version)
	fmt.Fprintf(w, "  source %s\n", prepared.SourceDir)
	for _, applied := range prepared.Manifest.Patches {
		fmt.Fprintf(w, "  patched %s\n", applied.Name)
	}
}

// removeNewFailures deletes failed stages that appeared during this
// run. before is the failed set from just ahead of the Prepare call;
// anything failed beyond that set is this run's debris.
func removeNewFailures(ctx context.Context, stager *libstage.Stager, db *installdb.DB, pkg string, before []*installdb.Stage, logger *slog.Logger) {
	known := make(map[int64]bool, len(before))
	for _, row := range before {
		known[row.ID] = true
	}

	after, err := db.Find(ctx, pkg, installdb.StatusFailed)
	if err != nil {
		logger.Warn("listing failed stages", "error", err)
		return
	}
	for _, row := range after {
		if known[row.ID] {
			continue
		}
		if err := stager.Remove(ctx, row.ID); err != nil {
			logger.Warn("removing failed stage",
				"stage", row.ID,
				"dir", row.Path,
				"error", err,
			)
			continue
		}
		logger.Info("removed failed stage",
			"package", row.Package,
			"version", row.Version,
			"dir", row.Path,
		)
	}
}
