// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	libpatch "github.com/quarry-build/quarry/lib/patch"
)

// isolateConfig points config discovery at empty locations so tests
// run against built-in defaults regardless of the host environment.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("QUARRY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

// stageTarget copies the baseline CMakeLists fixture into
// dir/src/util/CMakeLists.txt, matching the paths in the fixture
// patch at strip level 1.
func stageTarget(t *testing.T, dir string) string {
	t.Helper()
	baseline, err := os.ReadFile(filepath.Join("testdata", "mercury-util-cmakelists.txt"))
	if err != nil {
		t.Fatalf("reading baseline fixture: %v", err)
	}
	target := filepath.Join(dir, "src", "util", "CMakeLists.txt")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("creating target directory: %v", err)
	}
	if err := os.WriteFile(target, baseline, 0o644); err != nil {
		t.Fatalf("writing target: %v", err)
	}
	return target
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestApplyCommand_AppliesPatch(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	target := stageTarget(t, dir)

	command := applyCommand()
	err := command.Execute(context.Background(), []string{
		"--directory", dir,
		filepath.Join("testdata", "mercury-check-symbol-exists.patch"),
	}, testLogger())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading patched target: %v", err)
	}
	want, err := os.ReadFile(filepath.Join("testdata", "mercury-util-cmakelists-patched.txt"))
	if err != nil {
		t.Fatalf("reading expected fixture: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("patched content does not match the expected output")
	}
}

func TestApplyCommand_DryRunLeavesTargetAlone(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	target := stageTarget(t, dir)

	baseline, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading baseline: %v", err)
	}

	command := applyCommand()
	err = command.Execute(context.Background(), []string{
		"--directory", dir,
		"--dry-run",
		filepath.Join("testdata", "mercury-check-symbol-exists.patch"),
	}, testLogger())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target after dry run: %v", err)
	}
	if !bytes.Equal(got, baseline) {
		t.Error("dry run modified the target file")
	}
}

func TestApplyCommand_Reverse(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()

	patched, err := os.ReadFile(filepath.Join("testdata", "mercury-util-cmakelists-patched.txt"))
	if err != nil {
		t.Fatalf("reading patched fixture: %v", err)
	}
	target := filepath.Join(dir, "src", "util", "CMakeLists.txt")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("creating target directory: %v", err)
	}
	if err := os.WriteFile(target, patched, 0o644); err != nil {
		t.Fatalf("writing target: %v", err)
	}

	command := applyCommand()
	err = command.Execute(context.Background(), []string{
		"--directory", dir,
		"--reverse",
		filepath.Join("testdata", "mercury-check-symbol-exists.patch"),
	}, testLogger())
	if err != nil {
		t.Fatalf("reverse apply: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading reversed target: %v", err)
	}
	want, err := os.ReadFile(filepath.Join("testdata", "mercury-util-cmakelists.txt"))
	if err != nil {
		t.Fatalf("reading baseline fixture: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("reverse apply did not restore the baseline content")
	}
}

func TestApplyCommand_ContextMismatch(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	target := stageTarget(t, dir)

	// Corrupt a context line the first hunk depends on.
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	corrupted := bytes.Replace(content,
		[]byte("include(CheckIncludeFiles)"),
		[]byte("include(SomethingElse)"), 1)
	if err := os.WriteFile(target, corrupted, 0o644); err != nil {
		t.Fatalf("writing corrupted target: %v", err)
	}

	command := applyCommand()
	err = command.Execute(context.Background(), []string{
		"--directory", dir,
		filepath.Join("testdata", "mercury-check-symbol-exists.patch"),
	}, testLogger())
	if err == nil {
		t.Fatal("expected an apply error for mismatched context")
	}
	if !libpatch.IsApplyError(err) {
		t.Errorf("error should be an ApplyError, got %T: %v", err, err)
	}

	// The failed apply must not leave a half-patched file behind.
	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target after failed apply: %v", err)
	}
	if !bytes.Equal(after, corrupted) {
		t.Error("failed apply modified the target file")
	}
}

func TestApplyCommand_RequiresPatchArgument(t *testing.T) {
	isolateConfig(t)

	command := applyCommand()
	err := command.Execute(context.Background(), nil, testLogger())
	if err == nil {
		t.Fatal("expected an error for missing patch argument")
	}
	if !strings.Contains(err.Error(), "expected exactly one patch file") {
		t.Errorf("error = %q, want mention of the missing patch file", err)
	}
}

func TestApplyCommand_ConfigStripOverride(t *testing.T) {
	// A config file sets strip 0, under which the fixture's a/ and b/
	// path prefixes resolve nowhere. The --strip flag must win over
	// the config value.
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("patch:\n  strip: 0\n"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("QUARRY_CONFIG", configPath)

	dir := t.TempDir()
	stageTarget(t, dir)

	patchPath := filepath.Join("testdata", "mercury-check-symbol-exists.patch")

	command := applyCommand()
	err := command.Execute(context.Background(), []string{
		"--directory", dir, patchPath,
	}, testLogger())
	if err == nil {
		t.Fatal("expected an error applying with strip 0 from the config")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error = %q, want a missing-target failure", err)
	}

	command = applyCommand()
	err = command.Execute(context.Background(), []string{
		"--directory", dir, "--strip", "1", patchPath,
	}, testLogger())
	if err != nil {
		t.Fatalf("apply with explicit --strip should override the config: %v", err)
	}
}

func TestReportResults(t *testing.T) {
	tests := []struct {
		name    string
		results []*libpatch.Result
		dryRun  bool
		want    []string
		exclude []string
	}{
		{
			name: "exact application",
			results: []*libpatch.Result{
				{Path: "src/util/CMakeLists.txt", Hunks: []libpatch.HunkResult{{}, {}}},
			},
			want:    []string{"patched src/util/CMakeLists.txt\n"},
			exclude: []string{"hunk #", "would patch"},
		},
		{
			name: "dry run verb",
			results: []*libpatch.Result{
				{Path: "src/util/CMakeLists.txt"},
			},
			dryRun: true,
			want:   []string{"would patch src/util/CMakeLists.txt\n"},
		},
		{
			name: "created and deleted files",
			results: []*libpatch.Result{
				{Path: "new.txt", Created: true},
				{Path: "old.txt", Deleted: true},
			},
			want: []string{
				"patched new.txt (new file)\n",
				"patched old.txt (deleted)\n",
			},
		},
		{
			name: "offset and fuzz detail",
			results: []*libpatch.Result{
				{
					Path: "CMakeLists.txt",
					Hunks: []libpatch.HunkResult{
						{},
						{Offset: 3},
						{Offset: -2, Fuzz: 1},
					},
				},
			},
			want: []string{
				"  hunk #2 applied at offset +3 lines\n",
				"  hunk #3 applied at offset -2 lines with fuzz 1\n",
			},
			exclude: []string{"hunk #1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			reportResults(&output, tt.results, tt.dryRun)
			got := output.String()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
			for _, exclude := range tt.exclude {
				if strings.Contains(got, exclude) {
					t.Errorf("output should not contain %q:\n%s", exclude, got)
				}
			}
		})
	}
}
