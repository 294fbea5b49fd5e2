// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements "quarry cache": listing, verifying, and
// pruning the content-addressed source cache.
package cache

import (
	"github.com/quarry-build/quarry/cmd/quarry/cli"
)

// Command returns the "cache" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect and maintain the source cache",
		Description: `Work with the content-addressed source cache.

The cache holds every release archive and url patch quarry has
downloaded, keyed by content hash, so restaging a release never
touches the network. Entries are immutable; maintenance means
verifying their integrity and pruning old ones.`,
		Subcommands: []*cli.Command{
			listCommand(),
			verifyCommand(),
			pruneCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "List cached sources with sizes and origins",
				Command:     "quarry cache list",
			},
			{
				Description: "Re-read every blob and report corruption",
				Command:     "quarry cache verify",
			},
			{
				Description: "Drop sources cached more than 30 days ago",
				Command:     "quarry cache prune --older-than 720h",
			},
		},
	}
}
