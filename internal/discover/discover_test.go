package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "shapes.h", "struct Shape {};")
	writeFile(t, dir, "geo/point.hpp", "struct Point {};")
	// Sources are not headers
	writeFile(t, dir, "shapes.cpp", "int x;")
	writeFile(t, dir, "readme.txt", "hello")
	// Hidden file should be ignored
	writeFile(t, dir, ".hidden.h", "secret")

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(entries), paths)
	}

	// Should be sorted
	if entries[0].Path != "geo/point.hpp" {
		t.Errorf("entry 0: got %q", entries[0].Path)
	}
	if entries[0].Key != "point" {
		t.Errorf("entry 0 key: got %q", entries[0].Key)
	}
	if entries[1].Path != "shapes.h" {
		t.Errorf("entry 1: got %q", entries[1].Path)
	}

	for _, e := range entries {
		if e.Language != "cpp" {
			t.Errorf("entry %q: language = %q, want cpp", e.Path, e.Language)
		}
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.h", "")
	writeFile(t, dir, "build/generated.h", "")
	writeFile(t, dir, "CMakeFiles/probe.h", "")
	writeFile(t, dir, ".hidden/secret.h", "")

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Path != "main.h" {
		t.Errorf("expected main.h, got %q", entries[0].Path)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated/\n*_impl.h\n")
	writeFile(t, dir, "api.h", "")
	writeFile(t, dir, "api_impl.h", "")
	writeFile(t, dir, "generated/out.h", "")

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "api.h" {
		t.Fatalf("expected only api.h, got %v", entries)
	}
}

func TestDiscoverTests(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "lib.h", "")
	writeFile(t, dir, "tests/fixture.h", "")

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry without tests, got %d", len(entries))
	}

	entries, err = Headers(dir, Options{IncludeTests: true})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries with tests, got %d", len(entries))
	}
}

func TestDiscoverKeyCollision(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "types.h", "")
	writeFile(t, dir, "geo/types.h", "")

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	keys := map[string]string{}
	for _, e := range entries {
		keys[e.Path] = e.Key
	}
	if keys["types.h"] != "types" {
		t.Errorf("types.h key = %q", keys["types.h"])
	}
	if keys["geo/types.h"] != "geo_types" {
		t.Errorf("geo/types.h key = %q", keys["geo/types.h"])
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.h", "")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.h"), filepath.Join(dir, "link.h"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Headers(dir, Options{})
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "real.h" {
		t.Errorf("expected real.h, got %q", entries[0].Path)
	}
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		{"tests/fixture.h", true},
		{"test/inheritance.hpp", true},
		{"src/testing/mock.h", true},
		{"shapes_test.h", true},
		{"test_shapes.h", true},
		{"include/shapes.h", false},
		{"testing_utils.h", false},
		{"latest/api.h", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got := IsTestFile(tc.path)
			if got != tc.want {
				t.Errorf("IsTestFile(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
