package loop

import "sync"

// Async is a wake handle: Send from any goroutine causes the bound callback to run
// on the loop's consumer goroutine.
type Async struct {
	loop     *Loop
	callback func()

	mu      sync.Mutex
	pending bool
	closing bool
}

// NewAsync allocates a wake handle bound to callback. It fails with ErrClosed when
// the loop is stopped and ErrHandleLimit when the handle budget is exhausted.
func (l *Loop) NewAsync(callback func()) (*Async, error) {
	if err := l.acquire(); err != nil {
		return nil, err
	}
	return &Async{loop: l, callback: callback}, nil
}

// Send schedules the callback. Sends made while a previous one is still queued
// coalesce into a single invocation.
func (a *Async) Send() error {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return ErrHandleClosed
	}
	if a.pending {
		a.mu.Unlock()
		return nil
	}
	a.pending = true
	a.mu.Unlock()

	a.loop.Post(a.fire)
	return nil
}

// Close requests release of the handle. Queued sends are discarded. onClose, if
// non-nil, runs on the consumer goroutine once the handle has been released.
// Only the first call has any effect.
func (a *Async) Close(onClose func()) {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	a.mu.Unlock()

	a.loop.Post(func() {
		a.loop.release()
		if onClose != nil {
			onClose()
		}
	})
}

// Closing reports whether Close has been called.
func (a *Async) Closing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

func (a *Async) fire() {
	a.mu.Lock()
	a.pending = false
	closing := a.closing
	a.mu.Unlock()

	if closing {
		return
	}
	a.callback()
}
