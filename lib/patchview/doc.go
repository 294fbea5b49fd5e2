// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package patchview implements a terminal user interface for browsing
// unified diff patches. Built on bubbletea (Elm architecture), it
// provides a split-pane view with a hunk list on the left and the
// selected hunk's colored body on the right.
//
// The package holds only the browser model; the quarry CLI constructs
// it from a parsed [patch.Patch] and runs it inside a bubbletea
// program. Keeping the model here keeps the terminal UI dependency
// graph out of packages that only parse and apply patches.
//
// Data flow:
//
//	[parsed patch]
//	      |
//	  [Model] <- bubbletea event loop
//	      |
//	[terminal output]
package patchview
