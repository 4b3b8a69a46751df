package watcher

import "slices"

// Callback is a registered consumer function. Handles compare by identity, so
// the same function wrapped twice yields two distinct callbacks.
type Callback struct {
	fn func(Batch)
}

// NewCallback wraps fn as a registrable callback.
func NewCallback(fn func(Batch)) *Callback {
	return &Callback{fn: fn}
}

type callbackEntry struct {
	cb  *Callback
	seq uint64
}

// callbackSet is an ordered set of callbacks with a dispatch cursor that stays
// valid when entries are removed mid-pass, including by the callback being
// invoked. Entries added during a pass get a sequence number past the pass
// limit and are not invoked until the next pass.
//
// Not safe for concurrent use; the owning Watcher's lock guards it.
type callbackSet struct {
	entries []callbackEntry
	nextSeq uint64

	cursor int // -1 outside a pass
	moved  bool
}

func newCallbackSet() callbackSet {
	return callbackSet{cursor: -1}
}

func (s *callbackSet) len() int {
	return len(s.entries)
}

func (s *callbackSet) index(cb *Callback) int {
	return slices.IndexFunc(s.entries, func(e callbackEntry) bool { return e.cb == cb })
}

// add appends cb. Returns false if it is already present.
func (s *callbackSet) add(cb *Callback) bool {
	if s.index(cb) >= 0 {
		return false
	}
	s.nextSeq++
	s.entries = append(s.entries, callbackEntry{cb: cb, seq: s.nextSeq})
	return true
}

// remove deletes cb, keeping the cursor on the next entry still to be visited.
func (s *callbackSet) remove(cb *Callback) bool {
	i := s.index(cb)
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)

	if s.cursor >= 0 {
		switch {
		case i < s.cursor:
			s.cursor--
		case i == s.cursor:
			// The entry under the cursor is gone; its successor slid into place.
			s.moved = true
		}
	}
	return true
}

// begin starts a pass and returns its sequence limit.
func (s *callbackSet) begin() uint64 {
	s.cursor = 0
	s.moved = false
	return s.nextSeq
}

// current returns the callback under the cursor if it belongs to the pass.
func (s *callbackSet) current(limit uint64) (*Callback, bool) {
	s.moved = false
	if s.cursor >= len(s.entries) {
		return nil, false
	}
	// Entries are appended in sequence order, so everything from here on is new.
	if e := s.entries[s.cursor]; e.seq <= limit {
		return e.cb, true
	}
	return nil, false
}

// advance moves past the invoked entry unless a removal already did.
func (s *callbackSet) advance() {
	if !s.moved {
		s.cursor++
	}
}

func (s *callbackSet) end() {
	s.cursor = -1
	s.moved = false
}
