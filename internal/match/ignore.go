package match

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnorePatterns mirrors the paths please_js/esmdev's walkSourceTree
// hard-codes (hidden dirs, node_modules, plz-out), generalized as gitignore
// patterns so a project's own .jspackignore can extend rather than replace
// them .
var defaultIgnorePatterns = []string{
	".*",
	"node_modules",
	"plz-out",
	"*.swp",
	"*~",
}

// IgnoreMatcher decides which filesystem paths the watcher should never
// even stat, let alone treat as a dependency root.
type IgnoreMatcher struct {
	gi *gitignore.GitIgnore
}

// NewIgnoreMatcher compiles the default ignore rules plus an optional
// project .jspackignore file (same line syntax as .gitignore).
func NewIgnoreMatcher(projectIgnoreFile string) *IgnoreMatcher {
	lines := append([]string(nil), defaultIgnorePatterns...)
	if projectIgnoreFile != "" {
		if data, err := os.ReadFile(projectIgnoreFile); err == nil {
			lines = append(lines, splitLines(string(data))...)
		}
	}
	return &IgnoreMatcher{gi: gitignore.CompileIgnoreLines(lines...)}
}

// Match reports whether path should be ignored. path may be absolute or
// relative; only the base name and any path component are compared against
// the compiled patterns, same as a gitignore file rooted at the tree.
func (m *IgnoreMatcher) Match(path string) bool {
	if m == nil || m.gi == nil {
		return false
	}
	return m.gi.MatchesPath(filepath.ToSlash(path))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
