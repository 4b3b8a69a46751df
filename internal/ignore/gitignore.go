package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreFile is read from the watched directory when gitignore support is
// enabled. Nested ignore files are not consulted.
const GitignoreFile = ".gitignore"

// gitRule is one line of a gitignore file.
type gitRule struct {
	pattern  string
	negate   bool // starts with !
	dirOnly  bool // ends with /
	anchored bool // leading / or an inner /
}

// ReadGitignore returns the rule lines of root's .gitignore, or nil when the
// file does not exist.
func ReadGitignore(root string) ([]string, error) {
	f, err := os.Open(filepath.Join(root, GitignoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", GitignoreFile, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line, ok := ruleLine(scanner.Text()); ok {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", GitignoreFile, err)
	}
	return lines, nil
}

// ruleLine strips a raw line, dropping blanks and comments. A trailing space
// survives only when escaped.
func ruleLine(raw string) (string, bool) {
	escapedSpace := strings.HasSuffix(raw, `\ `)
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if escapedSpace && strings.HasSuffix(line, `\`) {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	return line, true
}

// parseGitRules compiles gitignore lines. Lines doublestar cannot parse are
// skipped, as git skips them.
func parseGitRules(lines []string) []gitRule {
	rules := make([]gitRule, 0, len(lines))
	for _, line := range lines {
		var r gitRule
		switch {
		case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
			line = line[1:]
		case strings.HasPrefix(line, "!"):
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			r.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		// "doc/frotz" is relative to the root; "**/frotz" is not.
		if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
			r.anchored = true
		}
		if line == "" || !doublestar.ValidatePattern(line) {
			continue
		}
		r.pattern = line
		rules = append(rules, r)
	}
	return rules
}

func (r gitRule) matches(rel string) bool {
	if r.anchored {
		ok, _ := doublestar.Match(r.pattern, rel)
		return ok
	}
	if ok, _ := doublestar.Match(r.pattern, path.Base(rel)); ok {
		return true
	}
	ok, _ := doublestar.Match(r.pattern, rel)
	return ok
}

// gitIgnored applies the rules in order; the last matching rule wins. isDir is
// only consulted when a directory-only rule matches.
func gitIgnored(rules []gitRule, rel string, isDir func() bool) bool {
	ignored := false
	for _, r := range rules {
		if !r.matches(rel) {
			continue
		}
		if r.dirOnly && !isDir() {
			continue
		}
		ignored = !r.negate
	}
	return ignored
}

// matchGit reports whether rel is excluded by the gitignore rules. Anything
// under an excluded directory stays excluded, since git never looks inside it.
func (m *Matcher) matchGit(rel string, abs string) bool {
	if len(m.git) == 0 {
		return false
	}
	always := func() bool { return true }
	for i := strings.IndexByte(rel, '/'); i >= 0; {
		if gitIgnored(m.git, rel[:i], always) {
			return true
		}
		next := strings.IndexByte(rel[i+1:], '/')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return gitIgnored(m.git, rel, func() bool {
		info, err := os.Lstat(abs)
		return err == nil && info.IsDir()
	})
}
