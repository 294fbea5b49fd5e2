// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// pruneParams holds the parameters for the cache prune command.
type pruneParams struct {
	Config    string `flag:"config"      desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	OlderThan string `flag:"older-than"  desc:"drop sources stored longer ago than this Go duration (e.g. 720h)"`
}

func pruneCommand() *cli.Command {
	var params pruneParams

	return &cli.Command{
		Name:    "prune",
		Summary: "Drop cached sources older than a cutoff",
		Description: `Delete every cached source stored longer ago than the given
duration. Durations use Go syntax: "72h" is three days, "720h" is
thirty days.

Pruned sources are gone from the cache only; stages already built
from them are untouched. The next stage of a pruned release downloads
it again.`,
		Usage: "quarry cache prune --older-than <duration> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("prune", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument %q", args[0]).
					WithHint("Usage: quarry cache prune --older-than <duration>")
			}
			if params.OlderThan == "" {
				return cli.Validation("--older-than is required").
					WithHint("Example: quarry cache prune --older-than 720h")
			}
			age, err := time.ParseDuration(params.OlderThan)
			if err != nil {
				return cli.Validation("invalid --older-than duration %q: %v", params.OlderThan, err)
			}
			if age <= 0 {
				return cli.Validation("--older-than must be a positive duration, got %q", params.OlderThan)
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			store, err := cli.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			return pruneStore(os.Stdout, store, time.Now().Add(-age), logger)
		},
	}
}

// pruneStore deletes entries stored before the cutoff and reports
// each removed ref.
func pruneStore(w io.Writer, store *sourcecache.Store, cutoff time.Time, logger *slog.Logger) error {
	removed, err := store.Prune(cutoff)
	if err != nil {
		return err
	}
	logger.Debug("cache pruned", "removed", len(removed))

	if len(removed) == 0 {
		fmt.Fprintln(w, "nothing to prune")
		return nil
	}
	for _, hash := range removed {
		fmt.Fprintf(w, "pruned %s\n", sourcecache.FormatRef(hash))
	}
	fmt.Fprintf(w, "%d removed\n", len(removed))
	return nil
}
