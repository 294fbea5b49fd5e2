// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree, flag binding, error taxonomy,
// and logging setup shared by every quarry subcommand.
//
// A [Command] node either dispatches to subcommands or runs a handler
// with the signature
//
//	func(ctx context.Context, args []string, logger *slog.Logger) error
//
// Flags bind from tagged params structs via [FlagsFromParams], so each
// command declares its surface once and the help output, parsing, and
// typo suggestions all derive from it. Handlers classify failures with
// the [ToolError] constructors ([Validation], [NotFound], ...) so exit
// paths stay uniform, and return [ExitError] when a non-zero exit is an
// answer rather than an error.
package cli
