// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"github.com/quarry-build/quarry/cmd/quarry/cli"
)

// Command returns the "recipe" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "recipe",
		Summary: "Inspect and validate build recipes",
		Description: `Work with recipe files without fetching or staging anything.

Recipes are JSONC documents: JSON with comments and trailing commas
permitted. Each one names a package, lists its versions with source
URLs and SHA-256 digests, and declares the patches that apply to each
version range.`,
		Subcommands: []*cli.Command{
			showCommand(),
			validateCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Render a recipe's metadata and description",
				Command:     "quarry recipe show recipes/mercury.jsonc",
			},
			{
				Description: "Inspect one version's source URL and patches",
				Command:     "quarry recipe show --version 1.0.1 recipes/mercury.jsonc",
			},
			{
				Description: "Check recipes for structural problems",
				Command:     "quarry recipe validate recipes/*.jsonc",
			},
		},
	}
}
