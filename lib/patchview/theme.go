// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patchview

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the patch browser. All colors
// use lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected hunk row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Diff line colors.
	AddedText   lipgloss.Color
	DeletedText lipgloss.Color
	HunkHeader  lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed
// for 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	AddedText:   lipgloss.Color("114"), // green
	DeletedText: lipgloss.Color("203"), // red
	HunkHeader:  lipgloss.Color("75"),  // blue

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
}
