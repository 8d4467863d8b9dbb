// Package discover finds C++ headers under an include root.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/bindgen/internal/config"
	"github.com/phobologic/bindgen/internal/lang"
)

// Header is a discovered header file.
type Header struct {
	Path     string // relative to the include root, slash separated
	Key      string // overlay key
	Language string
}

// Options narrows discovery.
type Options struct {
	// IncludeTests keeps headers under test directories.
	IncludeTests bool
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"build":        {},
	"dist":         {},
	"CMakeFiles":   {},
	"__pycache__":  {},
	"venv":         {},
	".venv":        {},
}

var testDirs = map[string]struct{}{
	"test":    {},
	"tests":   {},
	"testing": {},
}

// Headers discovers parseable headers under root. Files ignored by git, or
// by root's .gitignore outside a repository, are skipped. When two headers
// share an overlay key, the one with the shorter path keeps it and the
// other is keyed by its path.
func Headers(root string, opts Options) ([]Header, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []Header

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}
		if !opts.IncludeTests && IsTestFile(rel) {
			return nil
		}

		results = append(results, Header{Path: filepath.ToSlash(rel), Language: langName})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	assignKeys(results)

	return results, nil
}

func assignKeys(headers []Header) {
	order := make([]int, len(headers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(headers[order[a]].Path) < len(headers[order[b]].Path)
	})
	taken := make(map[string]bool)
	for _, i := range order {
		key := config.HeaderKey(headers[i].Path)
		if taken[key] {
			key = strings.TrimSuffix(headers[i].Path, filepath.Ext(headers[i].Path))
			key = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
		}
		taken[key] = true
		headers[i].Key = key
	}
}

// IsTestFile reports whether a header belongs to a test suite: it lives
// under a test directory or its name ends in _test.
func IsTestFile(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}
	base := parts[len(parts)-1]
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, "_test") || strings.HasPrefix(stem, "test_")
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
