// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cache

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
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// listParams holds the parameters for the cache list command.
type listParams struct {
	Config string `flag:"config" desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	Long   bool   `flag:"long,l" desc:"include full hashes, compression, and stored sizes"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List cached sources",
		Description: `List every source in the cache with its content size, age, and
origin URL. The REF column is the short content-hash reference other
commands print; --long shows the full hash along with the compression
codec and the on-disk size.`,
		Usage: "quarry cache list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument %q", args[0]).
					WithHint("Usage: quarry cache list [flags]")
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			store, err := cli.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			logger.Debug("cache listed", "entries", len(entries))

			return printEntries(os.Stdout, entries, params.Long)
		},
	}
}

// printEntries writes the cache listing as a table, or a notice when
// the cache is empty.
func printEntries(w io.Writer, entries []sourcecache.Entry, long bool) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "source cache is empty")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if long {
		fmt.Fprintln(writer, "HASH\tSIZE\tSTORED\tCODEC\tAGE\tURL")
	} else {
		fmt.Fprintln(writer, "REF\tSIZE\tAGE\tURL")
	}

	for _, entry := range entries {
		url := entry.Meta.URL
		if url == "" {
			url = "-"
		}
		size := humanize.IBytes(uint64(entry.Meta.Size))
		age := humanize.Time(entry.Meta.StoredAt)
		if long {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				sourcecache.FormatHash(entry.Hash), size,
				humanize.IBytes(uint64(entry.StoredSize)), entry.Meta.Compression, age, url)
		} else {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
				sourcecache.FormatRef(entry.Hash), size, age, url)
		}
	}
	return writer.Flush()
}
