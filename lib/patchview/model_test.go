// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patchview

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quarry-build/quarry/lib/patch"
)

// testPatchText is a two-file patch with three hunks: a header
// include insertion, a macro case fix, and a config template
// addition.
const testPatchText = `--- a/CMakeLists.txt
+++ b/CMakeLists.txt
@@ -3,5 +3,6 @@
 project(mercury C)

 include(CheckIncludeFile)
+include(CheckSymbolExists)
 include(CheckTypeSize)

@@ -24,7 +25,7 @@ if(NOT WIN32)
 set(CMAKE_REQUIRED_LIBRARIES rt)
-CHECK_SYMBOL_EXISTS(clock_gettime time.h HAVE_CLOCK_GETTIME)
+check_symbol_exists(clock_gettime time.h HAVE_CLOCK_GETTIME)
 if(HAVE_CLOCK_GETTIME)
   add_definitions(-DHAVE_CLOCK_GETTIME)
 endif()
 set(CMAKE_REQUIRED_LIBRARIES)

--- a/src/config.h.in
+++ b/src/config.h.in
@@ -1,3 +1,4 @@
 #ifndef MERCURY_CONFIG_H
+#cmakedefine HAVE_CLOCK_GETTIME
 #define MERCURY_CONFIG_H

`

// testModel parses the fixture patch and builds a model over it.
func testModel(t *testing.T) Model {
	t.Helper()
	parsed, err := patch.Parse([]byte(testPatchText))
	if err != nil {
		t.Fatalf("parsing fixture patch: %v", err)
	}
	return New("fix-build.patch", parsed)
}

func TestNewModel(t *testing.T) {
	model := testModel(t)

	if len(model.items) != 3 {
		t.Fatalf("expected 3 hunk items, got %d", len(model.items))
	}

	// Ordinals restart per file: two hunks in CMakeLists.txt, one in
	// the config template.
	if model.items[0].ordinal != 1 || model.items[1].ordinal != 2 {
		t.Errorf("first file ordinals should be 1, 2; got %d, %d",
			model.items[0].ordinal, model.items[1].ordinal)
	}
	if model.items[2].ordinal != 1 {
		t.Errorf("second file ordinal should be 1, got %d", model.items[2].ordinal)
	}

	if model.cursor != 0 {
		t.Errorf("initial cursor should be 0, got %d", model.cursor)
	}
	if model.focusRegion != FocusList {
		t.Errorf("initial focus should be the list, got %d", model.focusRegion)
	}
}

func TestModelNavigation(t *testing.T) {
	model := testModel(t)

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	press := func(r rune) {
		updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		model = updated.(Model)
	}

	press('j')
	if model.cursor != 1 {
		t.Errorf("cursor after j should be 1, got %d", model.cursor)
	}
	press('j')
	if model.cursor != 2 {
		t.Errorf("cursor after second j should be 2, got %d", model.cursor)
	}
	press('j')
	if model.cursor != 2 {
		t.Errorf("cursor should stop at the last hunk, got %d", model.cursor)
	}

	press('k')
	if model.cursor != 1 {
		t.Errorf("cursor after k should be 1, got %d", model.cursor)
	}
	press('k')
	press('k')
	if model.cursor != 0 {
		t.Errorf("cursor should stop at the first hunk, got %d", model.cursor)
	}

	press('G')
	if model.cursor != 2 {
		t.Errorf("G should jump to the last hunk, got %d", model.cursor)
	}
	press('g')
	if model.cursor != 0 {
		t.Errorf("g should jump to the first hunk, got %d", model.cursor)
	}
}

func TestModelView(t *testing.T) {
	model := testModel(t)

	// Before receiving WindowSizeMsg, View returns loading text.
	if view := model.View(); view != "Loading..." {
		t.Errorf("expected 'Loading...' before WindowSizeMsg, got %q", view)
	}

	// Use a wide terminal so labels aren't truncated by the two-pane
	// layout.
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	view := model.View()

	if !strings.Contains(view, "fix-build.patch") {
		t.Error("view should contain the patch name")
	}
	if !strings.Contains(view, "2 files  3 hunks  +3 -1") {
		t.Error("view should contain the change counts")
	}
	if !strings.Contains(view, "b/CMakeLists.txt #1 (line 3)") {
		t.Error("view should contain the first hunk label")
	}
	if !strings.Contains(view, "b/src/config.h.in #1 (line 1)") {
		t.Error("view should contain the second file's hunk label")
	}
	if !strings.Contains(view, "@@ -3,5 +3,6 @@") {
		t.Error("view should contain the selected hunk header")
	}
	if !strings.Contains(view, "+include(CheckSymbolExists)") {
		t.Error("view should contain the selected hunk's added line")
	}
	if !strings.Contains(view, "q quit") {
		t.Error("view should contain help text")
	}
	if !strings.Contains(view, "[LIST]") {
		t.Error("view should show list focus in the help bar")
	}
}

func TestModelSelectionUpdatesDetail(t *testing.T) {
	model := testModel(t)

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)

	view := model.View()
	if !strings.Contains(view, "@@ -24,7 +25,7 @@ if(NOT WIN32)") {
		t.Error("detail should show the second hunk header with its section")
	}
	if !strings.Contains(view, "-CHECK_SYMBOL_EXISTS(clock_gettime time.h HAVE_CLOCK_GETTIME)") {
		t.Error("detail should show the second hunk's deleted line")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)

	view = model.View()
	if !strings.Contains(view, "+#cmakedefine HAVE_CLOCK_GETTIME") {
		t.Error("detail should show the third hunk's added line")
	}
}

func TestModelFocusToggle(t *testing.T) {
	model := testModel(t)

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusDetail {
		t.Errorf("tab should move focus to the detail pane, got %d", model.focusRegion)
	}
	if !strings.Contains(model.View(), "[DETAIL]") {
		t.Error("help bar should show detail focus")
	}

	// With detail focus, j scrolls the viewport instead of moving the
	// list cursor.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("list cursor should not move while detail has focus, got %d", model.cursor)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("tab should move focus back to the list, got %d", model.focusRegion)
	}
}

func TestModelQuit(t *testing.T) {
	model := testModel(t)

	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if command == nil {
		t.Fatal("q key should return a command")
	}
	if _, isQuit := command().(tea.QuitMsg); !isQuit {
		t.Error("q key should produce a QuitMsg")
	}
}

func TestModelEmptyPatch(t *testing.T) {
	model := New("empty.patch", &patch.Patch{})

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)

	if !strings.Contains(model.View(), "Patch contains no hunks.") {
		t.Error("empty view should contain the no-hunks notice")
	}
}
