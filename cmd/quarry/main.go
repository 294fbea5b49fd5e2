// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Command quarry fetches, verifies, unpacks, and patches package
// sources from build recipes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quarry-build/quarry/cmd/quarry/audit"
	"github.com/quarry-build/quarry/cmd/quarry/cache"
	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/cmd/quarry/fetch"
	"github.com/quarry-build/quarry/cmd/quarry/find"
	"github.com/quarry-build/quarry/cmd/quarry/patch"
	"github.com/quarry-build/quarry/cmd/quarry/recipe"
	"github.com/quarry-build/quarry/cmd/quarry/stage"
	"github.com/quarry-build/quarry/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own diagnostics return an exit
		// error with the desired code. Don't add a redundant "error:"
		// line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCommand().Execute(ctx, os.Args[1:], cli.NewCommandLogger())
}

// rootCommand assembles the quarry command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "quarry",
		Summary: "Fetch, verify, unpack, and patch package sources",
		Description: `Quarry prepares package sources for building: it downloads release
archives per recipe, verifies checksums and signatures, unpacks into
staging directories, and applies the recipe's patches, recording every
step in a local install database.`,
		Subcommands: []*cli.Command{
			recipe.Command(),
			fetch.Command(),
			stage.Command(),
			patch.Command(),
			find.Command(),
			audit.Command(),
			cache.Command(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "quarry version",
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
