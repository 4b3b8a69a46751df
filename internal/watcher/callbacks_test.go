package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noop(Batch) {}

// runPass simulates a dispatch pass without locking, calling hook with the
// callback about to be invoked.
func runPass(s *callbackSet, hook func(cb *Callback)) []*Callback {
	var invoked []*Callback
	limit := s.begin()
	for {
		cb, ok := s.current(limit)
		if !ok {
			break
		}
		invoked = append(invoked, cb)
		hook(cb)
		s.advance()
	}
	s.end()
	return invoked
}

func TestCallbackSet_AddRemove(t *testing.T) {
	s := newCallbackSet()
	a, b := NewCallback(noop), NewCallback(noop)

	assert.True(t, s.add(a))
	assert.False(t, s.add(a), "duplicate add")
	assert.True(t, s.add(b))
	assert.Equal(t, 2, s.len())

	assert.True(t, s.remove(a))
	assert.False(t, s.remove(a), "double remove")
	assert.Equal(t, 1, s.len())
}

func TestCallbackSet_RemoveSelfAndNextAddNew(t *testing.T) {
	// Given: [A, B, C]
	s := newCallbackSet()
	a, b, c, d := NewCallback(noop), NewCallback(noop), NewCallback(noop), NewCallback(noop)
	s.add(a)
	s.add(b)
	s.add(c)

	// When: A removes itself and B, then adds D
	invoked := runPass(&s, func(cb *Callback) {
		if cb == a {
			s.remove(a)
			s.remove(b)
			s.add(d)
		}
	})

	// Then: A and C ran, B and D did not
	assert.Equal(t, []*Callback{a, c}, invoked)

	// And: the next pass sees [C, D]
	assert.Equal(t, []*Callback{c, d}, runPass(&s, func(*Callback) {}))
}

func TestCallbackSet_RemoveEarlierEntry(t *testing.T) {
	// Given: [A, B, C]
	s := newCallbackSet()
	a, b, c := NewCallback(noop), NewCallback(noop), NewCallback(noop)
	s.add(a)
	s.add(b)
	s.add(c)

	// When: B removes A (already visited)
	invoked := runPass(&s, func(cb *Callback) {
		if cb == b {
			s.remove(a)
		}
	})

	// Then: C is still visited exactly once
	assert.Equal(t, []*Callback{a, b, c}, invoked)
}

func TestCallbackSet_RemoveLaterEntry(t *testing.T) {
	// Given: [A, B, C]
	s := newCallbackSet()
	a, b, c := NewCallback(noop), NewCallback(noop), NewCallback(noop)
	s.add(a)
	s.add(b)
	s.add(c)

	// When: A removes C (not yet visited)
	invoked := runPass(&s, func(cb *Callback) {
		if cb == a {
			s.remove(c)
		}
	})

	// Then: C never runs
	assert.Equal(t, []*Callback{a, b}, invoked)
}

func TestCallbackSet_ReaddDuringPassWaitsForNextPass(t *testing.T) {
	// Given: [A, B]
	s := newCallbackSet()
	a, b := NewCallback(noop), NewCallback(noop)
	s.add(a)
	s.add(b)

	// When: A removes and re-adds itself
	invoked := runPass(&s, func(cb *Callback) {
		if cb == a {
			s.remove(a)
			s.add(a)
		}
	})

	// Then: A is not invoked twice
	assert.Equal(t, []*Callback{a, b}, invoked)
	assert.Equal(t, 2, s.len())
}
