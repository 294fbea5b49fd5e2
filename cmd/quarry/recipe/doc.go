// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package recipe implements the "quarry recipe" command group:
// inspecting and validating build recipes.
//
// A recipe is a JSONC file describing where a package's source
// archives live, how to verify them, and which patches apply to which
// versions. The subcommands here operate on recipe files directly and
// never touch the network: "validate" checks structure and reports
// problems one per line, and "show" renders a recipe's metadata and
// markdown description for human reading.
package recipe
