// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// verifyParams holds the parameters for the cache verify command.
type verifyParams struct {
	Config string `flag:"config" desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
}

func verifyCommand() *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Re-read every cached source and report corruption",
		Description: `Decompress and re-hash every blob in the cache, reporting entries
whose content no longer matches their hash, blobs that fail to
decompress, and stray files left by interrupted writes.

Corrupt entries are reported, not deleted; remove them with
"quarry cache prune" or by deleting the blob and its sidecar.`,
		Usage: "quarry cache verify [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument %q", args[0]).
					WithHint("Usage: quarry cache verify [flags]")
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			store, err := cli.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			return verifyStore(os.Stdout, store, logger)
		},
	}
}

// verifyStore runs the integrity check and reports the result.
func verifyStore(w io.Writer, store *sourcecache.Store, logger *slog.Logger) error {
	issues, err := store.Verify()
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}
	logger.Debug("cache verified", "entries", len(entries), "issues", len(issues))

	if len(issues) == 0 {
		fmt.Fprintf(w, "ok: %d sources verified\n", len(entries))
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintln(w, issue)
	}
	return &cli.ExitError{Code: 1}
}
