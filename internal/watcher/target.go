package watcher

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Target identifies what a watcher observes: a directory and the ignore set
// applied to it. Two targets are the same watch when both fields are equal;
// ignore order and duplicates do not matter.
type Target struct {
	Dir    string
	ignore []string
}

// NewTarget builds a canonical target. dir is cleaned; ignore entries are
// de-duplicated and sorted. Empty ignore entries are dropped.
func NewTarget(dir string, ignore ...string) Target {
	set := make([]string, 0, len(ignore))
	for _, p := range ignore {
		if p != "" {
			set = append(set, p)
		}
	}
	slices.Sort(set)
	set = slices.Compact(set)
	if len(set) == 0 {
		set = nil
	}
	return Target{Dir: filepath.Clean(dir), ignore: set}
}

// Ignore returns a copy of the canonical ignore set.
func (t Target) Ignore() []string {
	return slices.Clone(t.ignore)
}

// Equal reports structural equality.
func (t Target) Equal(o Target) bool {
	return t.Dir == o.Dir && slices.Equal(t.ignore, o.ignore)
}

// Hash returns a digest of both fields. Equal targets hash equally.
func (t Target) Hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(t.Dir)
	for _, p := range t.ignore {
		// NUL cannot appear in paths, so it separates entries unambiguously.
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(p)
	}
	return d.Sum64()
}

// String formats the target for logs.
func (t Target) String() string {
	if len(t.ignore) == 0 {
		return t.Dir
	}
	return t.Dir + " (ignore: " + strings.Join(t.ignore, ", ") + ")"
}
