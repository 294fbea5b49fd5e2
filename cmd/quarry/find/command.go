// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package find implements "quarry find": querying the install database
// for recorded stages.
package find

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/installdb"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// findParams holds the parameters for the find command.
type findParams struct {
	Config string `flag:"config"   desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	Status string `flag:"status,s" desc:"only stages with this status (staged, patched, failed, removed)"`
	Long   bool   `flag:"long,l"   desc:"include stage IDs, source refs, and paths"`
}

// Command returns the "find" command.
func Command() *cli.Command {
	var params findParams

	return &cli.Command{
		Name:    "find",
		Summary: "List recorded stages",
		Description: `List the stages recorded in the install database, newest first.

With no argument every stage is listed. A package name restricts the
listing to that package, and a name@constraint spec restricts it
further to a version range: "mercury@1.8:" matches 1.8 and later,
"mercury@:1.0.1" everything up to 1.0.1, and "mercury@1.0" any 1.0.x
release.`,
		Usage: "quarry find [spec] [flags]",
		Examples: []cli.Example{
			{
				Description: "List every recorded stage",
				Command:     "quarry find",
			},
			{
				Description: "List patched stages of one package",
				Command:     "quarry find --status patched mercury",
			},
			{
				Description: "List a version range with paths",
				Command:     "quarry find --long mercury@1.0:",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("find", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 1 {
				return cli.Validation("expected at most one package spec, got %d arguments", len(args)).
					WithHint("Usage: quarry find [spec] [flags]")
			}
			var spec string
			if len(args) == 1 {
				spec = args[0]
			}

			var status installdb.Status
			if params.Status != "" {
				var err error
				status, err = installdb.ParseStatus(params.Status)
				if err != nil {
					return cli.Validation("%v", err).
						WithHint("Valid statuses: staged, patched, failed, removed.")
				}
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			db, err := cli.OpenDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			stages, err := db.Find(ctx, spec, status)
			if err != nil {
				return err
			}
			logger.Debug("stages found", "spec", spec, "status", string(status), "count", len(stages))

			return printStages(os.Stdout, stages, params.Long)
		},
	}
}

// printStages writes the stage listing as a table, or a notice when
// nothing matched.
func printStages(w io.Writer, stages []*installdb.Stage, long bool) error {
	if len(stages) == 0 {
		fmt.Fprintln(w, "no matching stages")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if long {
		fmt.Fprintln(writer, "ID\tPACKAGE\tVERSION\tSTATUS\tSOURCE\tAGE\tPATH")
	} else {
		fmt.Fprintln(writer, "PACKAGE\tVERSION\tSTATUS\tAGE")
	}

	for _, stage := range stages {
		age := humanize.Time(stage.CreatedAt)
		if long {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				stage.ID, stage.Package, stage.Version, stage.Status,
				sourcecache.FormatRef(stage.SourceHash), age, stage.Path)
		} else {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
				stage.Package, stage.Version, stage.Status, age)
		}
	}
	return writer.Flush()
}
