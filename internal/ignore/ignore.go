// Package ignore decides which paths under a watched directory are filtered out
// before events reach a watcher.
//
// Entries without glob metacharacters are path prefixes, either absolute or
// relative to the watched directory. Other entries are doublestar patterns
// matched against the slash-separated path relative to the watched directory;
// a path is also ignored when any of its parent directories matches. Rules
// from the watched directory's .gitignore may be layered on top.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
)

// defaultPatterns cover VCS metadata and editor noise.
var defaultPatterns = []string{
	".git",
	".hg",
	".svn",
	"**/.DS_Store",
	"**/*.swp",
	"**/*~",
}

// DefaultPatterns returns a copy of the built-in ignore patterns.
func DefaultPatterns() []string {
	out := make([]string, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}

// Matcher reports whether a path is ignored.
type Matcher struct {
	root     string
	prefixes []string
	globs    []string
	git      []gitRule
}

// Compile builds a matcher for root. Invalid glob patterns are rejected with
// ERR_402_INVALID_PATTERN. gitignore holds rule lines from the root's
// .gitignore, as returned by ReadGitignore.
func Compile(root string, patterns []string, gitignore ...string) (*Matcher, error) {
	m := &Matcher{root: filepath.Clean(root), git: parseGitRules(gitignore)}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !isGlob(p) {
			if !filepath.IsAbs(p) {
				p = filepath.Join(m.root, p)
			}
			m.prefixes = append(m.prefixes, filepath.Clean(p))
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, invalidPattern(p)
		}
		m.globs = append(m.globs, p)
	}
	return m, nil
}

// Validate checks every glob pattern without building a matcher.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if isGlob(p) && !doublestar.ValidatePattern(p) {
			return invalidPattern(p)
		}
	}
	return nil
}

// Root returns the directory the matcher is relative to.
func (m *Matcher) Root() string {
	return m.root
}

// Match reports whether the absolute path is ignored. The root itself is never
// ignored; paths outside the root are. A nil matcher ignores nothing.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	path = filepath.Clean(path)
	if path == m.root {
		return false
	}

	for _, prefix := range m.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true
		}
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	rel = filepath.ToSlash(rel)
	return m.MatchRel(rel) || m.matchGit(rel, path)
}

// MatchRel reports whether a slash-separated path relative to the root matches
// a glob, directly or through one of its parent directories.
func (m *Matcher) MatchRel(rel string) bool {
	if m == nil || len(m.globs) == 0 || rel == "" || rel == "." {
		return false
	}
	for candidate := rel; candidate != "."; candidate = pathDir(candidate) {
		for _, g := range m.globs {
			if ok, _ := doublestar.Match(g, candidate); ok {
				return true
			}
		}
	}
	return false
}

func pathDir(rel string) string {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return "."
	}
	return rel[:i]
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func invalidPattern(p string) error {
	return swerrors.New(swerrors.ErrCodeInvalidPattern, fmt.Sprintf("invalid ignore pattern %q", p), nil).
		WithDetail("pattern", p).
		WithSuggestion("Ignore globs use doublestar syntax, e.g. **/node_modules or *.log")
}
