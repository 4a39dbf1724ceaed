// Package ignore decides which project paths ingestion skips.
package ignore

import (
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile is the optional per-project rules file, read in addition to
// .gitignore.
const IgnoreFile = ".graphloomignore"

// DefaultRules are always applied first; user negations can override them.
var DefaultRules = []string{
	".git/",
	".graphloom/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	".venv/",
}

// Matcher applies gitignore rules with "last rule wins" behavior.
type Matcher struct {
	rules *gitignore.GitIgnore
}

// NewMatcher builds a matcher from user-provided rule lines. Default
// excludes are prepended.
func NewMatcher(userRules []string) *Matcher {
	all := make([]string, 0, len(DefaultRules)+len(userRules))
	all = append(all, DefaultRules...)
	for _, line := range userRules {
		if line = strings.TrimSpace(line); line != "" {
			all = append(all, line)
		}
	}
	return &Matcher{rules: gitignore.CompileIgnoreLines(all...)}
}

// ShouldIgnore returns true when relPath should be excluded.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = normalizePath(relPath)
	if relPath == "" || relPath == "." {
		return false
	}
	if isDir {
		relPath += "/"
	}
	return m.rules.MatchesPath(relPath)
}

func normalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return path
}
