package watcher

import (
	"log/slog"
)

// RecordEvents merges events into the pending batch. It never touches the
// batch already handed to the consumer.
func (w *Watcher) RecordEvents(events ...FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recordLocked(events)
}

// Record is the producer entry point: it merges events, releases every
// goroutine blocked in Wait, and requests a debounced delivery when there is
// someone to deliver to.
func (w *Watcher) Record(events ...FileEvent) {
	if len(events) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.recordLocked(events) {
		return
	}
	w.notifyWaiters()
	w.maybeTriggerLocked()
}

func (w *Watcher) recordLocked(events []FileEvent) bool {
	if w.closed {
		return false
	}
	for _, ev := range events {
		w.pending.Add(ev)
	}
	return true
}

func (w *Watcher) notifyWaiters() {
	w.changed.Notify()
}

// maybeTriggerLocked must be called with lock held. An idle watcher never asks
// for a wake.
func (w *Watcher) maybeTriggerLocked() {
	if w.callbacks.len() == 0 || w.pending.Empty() {
		return
	}
	w.coordinator.Trigger()
}

// trigger is the debounce listener. It may run on any goroutine. A pass already
// in progress is allowed to finish first, so events swapped out here are never
// merged into a batch that callbacks are still reading.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.dispatching {
		ch := w.dispatchDone.C()
		w.mu.Unlock()
		<-ch
		w.mu.Lock()
	}

	if w.wake == nil || w.callbacks.len() == 0 || w.pending.Empty() {
		return
	}

	w.inFlight.Merge(w.pending.take())
	if err := w.wake.Send(); err != nil {
		w.logger.Warn("wake failed, events held for next trigger",
			slog.Int("events", w.inFlight.Len()),
			slog.String("error", err.Error()))
	}
}

// dispatch runs on the consumer goroutine when the wake handle fires.
func (w *Watcher) dispatch() {
	w.mu.Lock()
	if w.dispatching {
		w.mu.Unlock()
		panic("watcher: overlapping dispatch for " + w.target.String())
	}
	if w.closed || w.inFlight.Empty() {
		w.mu.Unlock()
		return
	}

	batch := w.inFlight.take()
	w.dispatching = true
	limit := w.callbacks.begin()

	for {
		cb, ok := w.callbacks.current(limit)
		if !ok {
			break
		}
		w.mu.Unlock()
		cb.fn(batch)
		w.mu.Lock()
		w.callbacks.advance()
	}

	w.callbacks.end()
	w.dispatching = false
	torn := w.unrefLocked()
	w.dispatchDone.Notify()
	w.mu.Unlock()

	w.unlist(torn)
}
