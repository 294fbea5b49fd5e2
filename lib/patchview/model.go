// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patchview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/quarry-build/quarry/lib/patch"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusList means navigation keys move the hunk list cursor.
	FocusList FocusRegion = iota
	// FocusDetail means navigation keys scroll the hunk body viewport.
	FocusDetail
)

// listSplitRatio is the fraction of the terminal width given to the
// hunk list pane. The remainder, minus the divider column, goes to
// the detail pane.
const listSplitRatio = 0.40

// hunkRef locates one hunk within the patch. ordinal is the 1-based
// index of the hunk within its file diff, matching the numbering in
// apply output and error messages.
type hunkRef struct {
	file    *patch.FileDiff
	hunk    *patch.Hunk
	ordinal int
}

// Model is the top-level bubbletea model for the patch browser.
type Model struct {
	name    string
	patch   *patch.Patch
	theme   Theme
	keys    KeyMap
	changes []patch.FileStat

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Hunk list state.
	items        []hunkRef
	cursor       int
	scrollOffset int

	// Two-pane layout.
	focusRegion FocusRegion
	detail      viewport.Model
}

// New creates a Model over a parsed patch. name is the display name
// for the header, typically the patch file path as given on the
// command line.
func New(name string, parsed *patch.Patch) Model {
	model := Model{
		name:    name,
		patch:   parsed,
		theme:   DefaultTheme,
		keys:    DefaultKeyMap,
		changes: patch.Stat(parsed),
	}
	for _, fileDiff := range parsed.Files {
		for index, hunk := range fileDiff.Hunks {
			model.items = append(model.items, hunkRef{
				file:    fileDiff,
				hunk:    hunk,
				ordinal: index + 1,
			})
		}
	}
	return model
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model. Routes keyboard events based on the
// current focus region and handles layout changes.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.FocusToggle):
			if model.focusRegion == FocusList {
				model.focusRegion = FocusDetail
			} else {
				model.focusRegion = FocusList
			}

		default:
			if model.focusRegion == FocusList {
				model.handleListKeys(message)
			} else {
				model.handleDetailKeys(message)
			}
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.updatePaneSizes()
		model.ensureCursorVisible()
		model.syncDetail()
	}
	return model, nil
}

// handleListKeys processes navigation while the hunk list has focus.
// Selection changes re-render the detail pane for the new hunk.
func (model *Model) handleListKeys(message tea.KeyMsg) {
	previous := model.cursor

	switch {
	case key.Matches(message, model.keys.Up):
		model.cursor--
	case key.Matches(message, model.keys.Down):
		model.cursor++
	case key.Matches(message, model.keys.PageUp):
		model.cursor -= model.visibleHeight()
	case key.Matches(message, model.keys.PageDown):
		model.cursor += model.visibleHeight()
	case key.Matches(message, model.keys.Home):
		model.cursor = 0
	case key.Matches(message, model.keys.End):
		model.cursor = len(model.items) - 1
	default:
		return
	}

	if model.cursor < 0 {
		model.cursor = 0
	}
	if model.cursor > len(model.items)-1 {
		model.cursor = len(model.items) - 1
	}
	if model.cursor != previous {
		model.ensureCursorVisible()
		model.syncDetail()
	}
}

// handleDetailKeys scrolls the hunk body viewport.
func (model *Model) handleDetailKeys(message tea.KeyMsg) {
	switch {
	case key.Matches(message, model.keys.Up):
		model.detail.LineUp(1)
	case key.Matches(message, model.keys.Down):
		model.detail.LineDown(1)
	case key.Matches(message, model.keys.PageUp):
		model.detail.HalfViewUp()
	case key.Matches(message, model.keys.PageDown):
		model.detail.HalfViewDown()
	case key.Matches(message, model.keys.Home):
		model.detail.GotoTop()
	case key.Matches(message, model.keys.End):
		model.detail.GotoBottom()
	}
}

// updatePaneSizes recalculates pane dimensions after a resize.
func (model *Model) updatePaneSizes() {
	// 1 column for the vertical divider between panes.
	detailWidth := model.width - model.listWidth() - 1
	if detailWidth < 10 {
		detailWidth = 10
	}
	model.detail.Width = detailWidth
	model.detail.Height = model.visibleHeight()
}

// listWidth returns the width of the hunk list pane in columns.
func (model Model) listWidth() int {
	return int(float64(model.width) * listSplitRatio)
}

// visibleHeight returns the number of list rows that fit between the
// header line and the bottom separator plus help bar.
func (model Model) visibleHeight() int {
	visible := model.height - 3
	if visible < 0 {
		return 0
	}
	return visible
}

// ensureCursorVisible adjusts scrollOffset so the cursor is within
// the visible window.
func (model *Model) ensureCursorVisible() {
	visible := model.visibleHeight()
	if visible <= 0 {
		return
	}

	maxOffset := len(model.items) - visible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if model.scrollOffset > maxOffset {
		model.scrollOffset = maxOffset
	}

	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	} else if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

// syncDetail re-renders the selected hunk into the detail viewport
// and resets the scroll position.
func (model *Model) syncDetail() {
	if len(model.items) == 0 {
		return
	}
	model.detail.SetContent(model.renderHunk(model.items[model.cursor]))
	model.detail.GotoTop()
}

// View implements tea.Model. Renders the full frame with two panes.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	if len(model.items) == 0 {
		return model.renderEmpty()
	}

	var sections []string
	sections = append(sections, model.renderHeader())

	listView := model.renderListPane()
	divider := model.renderDivider()
	contentArea := lipgloss.JoinHorizontal(lipgloss.Top, listView, divider, model.detail.View())
	sections = append(sections, contentArea)

	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	sections = append(sections, separator)

	sections = append(sections, model.renderHelp())

	return strings.Join(sections, "\n")
}

// renderEmpty centers a notice for patches without hunks.
func (model Model) renderEmpty() string {
	messageStyle := lipgloss.NewStyle().
		Foreground(model.theme.FaintText)

	return lipgloss.Place(
		model.width, model.height,
		lipgloss.Center, lipgloss.Center,
		messageStyle.Render("Patch contains no hunks."),
	)
}

// renderHeader renders the top line in the btop style: the patch name
// embedded in a horizontal rule with change counts on the right.
//
// Example: ─── fix-build.patch ───────────── 1 file  3 hunks  +5 -2 ─
func (model Model) renderHeader() string {
	separatorStyle := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor)
	nameStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground)
	statsStyle := lipgloss.NewStyle().
		Foreground(model.theme.FaintText)

	sep := separatorStyle.Render("─")

	leftParts := sep + sep + sep + " " + nameStyle.Render(model.name) + " "
	cursor := 3 + 1 + lipgloss.Width(model.name) + 1

	added, deleted := 0, 0
	for _, stat := range model.changes {
		added += stat.Added
		deleted += stat.Deleted
	}
	statsText := fmt.Sprintf("%d files  %d hunks  +%d -%d",
		len(model.patch.Files), len(model.items), added, deleted)
	if len(model.patch.Files) == 1 {
		statsText = fmt.Sprintf("1 file  %d hunks  +%d -%d",
			len(model.items), added, deleted)
	}
	statsRendered := statsStyle.Render(statsText)
	statsWidth := lipgloss.Width(statsText)

	rightPortion := " " + statsRendered + " " + sep
	rightWidth := 1 + statsWidth + 1 + 1

	fillCount := model.width - cursor - rightWidth
	if fillCount < 1 {
		fillCount = 1
	}
	fill := ""
	for range fillCount {
		fill += sep
	}

	return leftParts + fill + rightPortion
}

// renderListPane renders the hunk list rows.
func (model Model) renderListPane() string {
	rowWidth := model.listWidth()
	visible := model.visibleHeight()

	var rows []string
	for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.items); index++ {
		item := model.items[index]
		label := fmt.Sprintf(" %s #%d (line %d)",
			displayPath(item.file), item.ordinal, item.hunk.OldStart)
		label = ansi.Truncate(label, rowWidth, "…")

		rowStyle := lipgloss.NewStyle().
			Width(rowWidth).
			MaxWidth(rowWidth).
			Foreground(model.theme.NormalText)
		if index == model.cursor {
			rowStyle = rowStyle.
				Background(model.theme.SelectedBackground).
				Foreground(model.theme.SelectedForeground)
			if model.focusRegion == FocusList {
				rowStyle = rowStyle.Bold(true)
			}
		}
		rows = append(rows, rowStyle.Render(label))
	}

	// Pad empty rows so the divider spans the full content height.
	emptyStyle := lipgloss.NewStyle().Width(rowWidth)
	for len(rows) < visible {
		rows = append(rows, emptyStyle.Render(""))
	}

	return strings.Join(rows, "\n")
}

// renderDivider renders the single-column vertical divider between
// the list and detail panes.
func (model Model) renderDivider() string {
	visible := model.visibleHeight()

	dividerStyle := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor)

	lines := make([]string, visible)
	for index := range lines {
		lines[index] = "│"
	}
	return dividerStyle.Width(1).Height(visible).Render(strings.Join(lines, "\n"))
}

// renderHunk renders one hunk body with per-line diff coloring for
// the detail viewport.
func (model Model) renderHunk(item hunkRef) string {
	width := model.detail.Width

	headerStyle := lipgloss.NewStyle().Foreground(model.theme.HunkHeader)
	addedStyle := lipgloss.NewStyle().Foreground(model.theme.AddedText)
	deletedStyle := lipgloss.NewStyle().Foreground(model.theme.DeletedText)
	contextStyle := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	markerStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@",
		item.hunk.OldStart, item.hunk.OldLines,
		item.hunk.NewStart, item.hunk.NewLines)
	if item.hunk.Section != "" {
		header += " " + item.hunk.Section
	}

	lines := []string{headerStyle.Render(ansi.Truncate(header, width, "…"))}
	for _, line := range item.hunk.Lines {
		text := string(line.Op) + strings.TrimSuffix(string(line.Text), "\n")
		text = ansi.Truncate(text, width, "…")

		switch line.Op {
		case patch.OpAdd:
			lines = append(lines, addedStyle.Render(text))
		case patch.OpDelete:
			lines = append(lines, deletedStyle.Render(text))
		default:
			lines = append(lines, contextStyle.Render(text))
		}
		if line.NoEOL {
			lines = append(lines, markerStyle.Render(`\ No newline at end of file`))
		}
	}
	return strings.Join(lines, "\n")
}

// renderHelp renders the bottom help bar with key hints and position.
func (model Model) renderHelp() string {
	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	focusIndicator := "LIST"
	if model.focusRegion == FocusDetail {
		focusIndicator = "DETAIL"
	}

	help := fmt.Sprintf(" [%s] q quit  j/k navigate  Tab focus  g/G top/bottom",
		focusIndicator)
	help += fmt.Sprintf("  %d/%d", model.cursor+1, len(model.items))

	return style.Render(help)
}

// displayPath returns the path to show for a file diff: the new side,
// or the old side for deletions.
func displayPath(fileDiff *patch.FileDiff) string {
	if fileDiff.DeletesFile() {
		return fileDiff.OldPath
	}
	return fileDiff.NewPath
}
