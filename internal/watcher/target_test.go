package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTarget_Canonicalizes(t *testing.T) {
	// Given/When: a target with an unclean dir and a messy ignore list
	target := NewTarget("/src/./app/", "b", "a", "", "b")

	// Then: dir is cleaned, ignore is sorted and de-duplicated
	assert.Equal(t, "/src/app", target.Dir)
	assert.Equal(t, []string{"a", "b"}, target.Ignore())
}

func TestTarget_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Target
		want bool
	}{
		{"same dir no ignore", NewTarget("/a"), NewTarget("/a/"), true},
		{"ignore order irrelevant", NewTarget("/a", "x", "y"), NewTarget("/a", "y", "x"), true},
		{"different dir", NewTarget("/a"), NewTarget("/b"), false},
		{"different ignore", NewTarget("/a", "x"), NewTarget("/a", "y"), false},
		{"ignore vs none", NewTarget("/a", "x"), NewTarget("/a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			if tt.want {
				assert.Equal(t, tt.a.Hash(), tt.b.Hash())
			}
		})
	}
}

func TestTarget_HashSeparatesEntries(t *testing.T) {
	// Given: ignore sets whose concatenation is identical
	a := NewTarget("/a", "xy")
	b := NewTarget("/a", "x", "y")

	// Then: the hashes differ
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestTarget_IgnoreReturnsCopy(t *testing.T) {
	// Given: a target
	target := NewTarget("/a", "x")

	// When: the returned slice is modified
	ig := target.Ignore()
	ig[0] = "changed"

	// Then: the target is unaffected
	assert.Equal(t, []string{"x"}, target.Ignore())
}
