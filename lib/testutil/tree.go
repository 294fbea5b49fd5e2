// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree writes every entry of files under root, creating parent
// directories as needed. Keys are slash-separated paths relative to
// root; values are file contents. Returns root for chaining with
// t.TempDir().
//
//	dir := testutil.WriteTree(t, t.TempDir(), map[string]string{
//	    "src/util/CMakeLists.txt": cmakeContent,
//	    "README.md":               "hello\n",
//	})
func WriteTree(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return root
}
