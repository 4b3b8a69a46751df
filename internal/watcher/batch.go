package watcher

import "sort"

// Batch is a set of file events keyed by path. Events recorded for a path that
// is already present are coalesced:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// Rules apply to the path's net state, so MODIFY + DELETE + CREATE is MODIFY.
//
// The zero value is an empty batch. A Batch delivered to a callback is shared by
// every callback in the pass and must be treated as read-only.
type Batch struct {
	events map[string]*pendingEvent
}

type pendingEvent struct {
	event FileEvent
}

// NewBatch builds a batch from events, coalescing in order.
func NewBatch(events ...FileEvent) Batch {
	var b Batch
	for _, ev := range events {
		b.Add(ev)
	}
	return b
}

// Add records an event, coalescing with any event already held for its path.
func (b *Batch) Add(event FileEvent) {
	if b.events == nil {
		b.events = make(map[string]*pendingEvent)
	}

	existing, ok := b.events[event.Path]
	if !ok {
		b.events[event.Path] = &pendingEvent{event: event}
		return
	}

	merged, keep := coalesce(existing, event)
	if !keep {
		// Events cancelled each other out (CREATE + DELETE)
		delete(b.events, event.Path)
		return
	}
	existing.event = merged
}

// Merge folds other into b as if other's events were recorded after b's.
func (b *Batch) Merge(other Batch) {
	for path, pe := range other.events {
		if _, ok := b.events[path]; ok {
			b.Add(pe.event)
			continue
		}
		if b.events == nil {
			b.events = make(map[string]*pendingEvent, len(other.events))
		}
		cp := *pe
		b.events[path] = &cp
	}
}

// Len returns the number of paths in the batch.
func (b Batch) Len() int {
	return len(b.events)
}

// Empty reports whether the batch has no events.
func (b Batch) Empty() bool {
	return len(b.events) == 0
}

// Get returns the coalesced event for path.
func (b Batch) Get(path string) (FileEvent, bool) {
	pe, ok := b.events[path]
	if !ok {
		return FileEvent{}, false
	}
	return pe.event, true
}

// Events returns the coalesced events sorted by path.
func (b Batch) Events() []FileEvent {
	out := make([]FileEvent, 0, len(b.events))
	for _, pe := range b.events {
		out = append(out, pe.event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// take returns the current contents and leaves b empty.
func (b *Batch) take() Batch {
	out := *b
	*b = Batch{}
	return out
}

// coalesce folds next into the event already held for its path. The held
// operation is the path's net state within the batch: CREATE means the file is
// new to this batch, anything else means it existed before.
func coalesce(existing *pendingEvent, next FileEvent) (FileEvent, bool) {
	switch existing.event.Operation {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			// keep original create, refresh timestamp
			merged := existing.event
			merged.Timestamp = next.Timestamp
			return merged, true
		case OpDelete:
			return FileEvent{}, false
		}

	case OpDelete, OpModify:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}
