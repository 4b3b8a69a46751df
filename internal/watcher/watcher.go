package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/sharedwatch/internal/debounce"
	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
	"github.com/Aman-CERP/sharedwatch/internal/loop"
)

// ErrWatcherClosed is returned by operations on a watcher that has been torn
// down. Callers resolve the target through the registry again.
var ErrWatcherClosed = errors.New("watcher: closed")

// Watcher is the shared state for one Target: its callbacks, the events
// accumulated between dispatches, and the wake handle that schedules delivery
// on the consumer loop.
//
// A watcher is watched from its first successful Register until teardown.
// Teardown happens when the last callback is removed, but never while a
// dispatch pass is running or a goroutine is blocked in Wait; in those cases
// it is deferred to the end of the pass or the last Wait. Until then the
// watcher keeps its wake handle and its registry entry, so a waiter is always
// released by the next recorded change rather than stranded on a closed
// watcher.
//
// Lock order: the watcher lock is released before the registry lock is taken.
type Watcher struct {
	target      Target
	registry    *Registry
	loop        *loop.Loop
	coordinator *debounce.Coordinator
	logger      *slog.Logger

	mu          sync.Mutex
	callbacks   callbackSet
	pending     Batch
	inFlight    Batch
	wake        *loop.Async // non-nil iff watched
	listener    debounce.ListenerID
	dispatching bool
	closed      bool
	waiters     int

	changed      *Signal
	dispatchDone *Signal

	done     chan struct{}
	doneOnce sync.Once
}

func newWatcher(r *Registry, target Target) *Watcher {
	return &Watcher{
		target:       target,
		registry:     r,
		loop:         r.opts.Loop,
		coordinator:  r.opts.Coordinator,
		logger:       r.opts.Logger.With(slog.String("dir", target.Dir)),
		callbacks:    newCallbackSet(),
		changed:      NewSignal(),
		dispatchDone: NewSignal(),
		done:         make(chan struct{}),
	}
}

// Target returns the watcher's identity.
func (w *Watcher) Target() Target {
	return w.target
}

// Register adds cb. It reports true only for the registration that starts the
// watch, which allocates the wake handle; the caller is then responsible for
// starting an event source. Registering a callback that is already present, or
// on a watcher that is already watched, reports false.
func (w *Watcher) Register(cb *Callback) (bool, error) {
	if cb == nil || cb.fn == nil {
		return false, swerrors.New(swerrors.ErrCodeNilCallback, "callback must not be nil", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false, ErrWatcherClosed
	}
	if !w.callbacks.add(cb) {
		return false, nil
	}
	if w.wake != nil {
		return false, nil
	}

	wake, err := w.loop.NewAsync(w.dispatch)
	if err != nil {
		w.callbacks.remove(cb)
		return false, swerrors.New(swerrors.ErrCodeWakeAllocation, "cannot allocate wake handle", err).
			WithDetail("dir", w.target.Dir).
			WithSuggestion("Close unused watches or raise loop.max_handles")
	}

	w.wake = wake
	w.listener = w.coordinator.Add(w.trigger)
	w.logger.Debug("watch started", slog.Int("held_events", w.pending.Len()))

	// Changes recorded while only waiters held the watcher go out with the
	// first batch.
	w.maybeTriggerLocked()
	return true, nil
}

// Unregister removes cb. It reports true when cb was the last callback, in
// which case the watcher is torn down (possibly deferred). Removing a callback
// that is not registered reports false.
func (w *Watcher) Unregister(cb *Callback) bool {
	w.mu.Lock()
	if !w.callbacks.remove(cb) || w.callbacks.len() > 0 {
		w.mu.Unlock()
		return false
	}
	torn := w.unrefLocked()
	w.mu.Unlock()

	w.unlist(torn)
	return true
}

// Unref tears the watcher down if nothing uses it any more. Wait-only users call
// it once they are done with a watcher they never registered a callback on.
func (w *Watcher) Unref() {
	w.mu.Lock()
	torn := w.unrefLocked()
	w.mu.Unlock()

	w.unlist(torn)
}

// unrefLocked must be called with lock held. It reports whether the watcher
// was torn down, in which case the caller removes it from the registry with
// unlist once the lock is released.
func (w *Watcher) unrefLocked() bool {
	if w.closed || w.callbacks.len() > 0 || w.waiters > 0 {
		return false
	}
	if w.dispatching {
		w.logger.Debug("teardown deferred until dispatch completes")
		return false
	}

	if w.wake != nil {
		w.coordinator.Remove(w.listener)
		w.wake.Close(w.released)
		w.wake = nil
	} else {
		w.released()
	}

	w.pending = Batch{}
	w.inFlight = Batch{}
	w.closed = true
	w.logger.Debug("watcher torn down")
	return true
}

// unlist drops a torn-down watcher from the registry. The watcher lock must
// not be held: the registry lock is never taken inside it.
func (w *Watcher) unlist(torn bool) {
	if torn {
		w.registry.remove(w)
	}
}

// released runs once the wake handle is gone, on the consumer goroutine when
// the watcher was ever watched.
func (w *Watcher) released() {
	w.doneOnce.Do(func() {
		close(w.done)
	})
}

// Done returns a channel closed once the watcher is torn down and its wake
// handle has been released.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the next change is recorded on this watcher, ctx is done,
// or returns ErrWatcherClosed if the watcher was already torn down. Every
// goroutine waiting when a change arrives is released.
func (w *Watcher) Wait(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.waiters++
	ch := w.changed.C()
	w.mu.Unlock()

	var err error
	select {
	case <-ch:
	case <-ctx.Done():
		err = ctx.Err()
	}

	w.mu.Lock()
	w.waiters--
	torn := false
	if w.waiters == 0 && w.wake != nil && w.callbacks.len() == 0 {
		// The last callback left while we were waiting.
		torn = w.unrefLocked()
	}
	w.mu.Unlock()

	w.unlist(torn)
	return err
}

// Watched reports whether the watcher currently holds a wake handle.
func (w *Watcher) Watched() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wake != nil
}

// Closed reports whether the watcher has been torn down.
func (w *Watcher) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Callbacks returns the number of registered callbacks.
func (w *Watcher) Callbacks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.callbacks.len()
}

// Pending returns the number of paths recorded but not yet handed to the
// consumer.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Len()
}
