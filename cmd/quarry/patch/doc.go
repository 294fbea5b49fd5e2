// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch implements the "quarry patch" subcommands for applying
// and inspecting unified diffs.
//
// Subcommands:
//
//   - apply: apply a patch to a directory, with strip, reverse,
//     dry-run, and fuzz control.
//   - show: print a parsed summary of a patch, with per-file change
//     counts under --stat and colored hunks on terminals.
//   - view: browse a patch hunk by hunk in an interactive terminal UI.
//
// The apply defaults (strip level, fuzz) come from the patch section
// of the configuration, so a project that consistently ships -p0
// patches sets that once instead of on every invocation.
package patch
