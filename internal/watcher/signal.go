package watcher

import (
	"context"
	"sync"
)

// Signal is a broadcast notification. Each Notify releases every goroutine
// that obtained the channel before it; later callers wait for the next Notify.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// C returns the channel closed by the next Notify.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Notify releases all current waiters.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}

// Wait blocks until the next Notify or until ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
