// Package loop provides the designated consumer goroutine and the cross-goroutine
// wake handles that schedule work onto it.
//
// A Loop runs queued work on whichever goroutine calls Run. Producers never run
// consumer code directly: they allocate an Async handle bound to a callback and call
// Send, which schedules that callback on the loop. Sends coalesce while a callback is
// still queued. Closing a handle is asynchronous: Close marks the handle closed and
// the loop runs the supplied completion callback later, on the consumer goroutine.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when allocating a handle on a stopped loop.
	ErrClosed = errors.New("loop: closed")
	// ErrHandleLimit is returned when the loop already owns MaxHandles open handles.
	ErrHandleLimit = errors.New("loop: handle limit reached")
	// ErrHandleClosed is returned by Send on a handle that is closing or closed.
	ErrHandleClosed = errors.New("loop: handle closed")
	// ErrRunning is returned when Run is called while the loop is already running.
	ErrRunning = errors.New("loop: already running")
)

// Options configures a Loop.
type Options struct {
	// MaxHandles bounds the number of open Async handles. Zero means unlimited.
	MaxHandles int

	// LockOSThread pins the consumer goroutine to its OS thread for the
	// duration of Run.
	LockOSThread bool

	Logger *slog.Logger
}

// Loop is a single-consumer work queue.
type Loop struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	handles int
	closed  bool

	wakeup  chan struct{}
	stopCh  chan struct{}
	stopped sync.Once
	running atomic.Bool
}

// New creates a Loop. Nothing runs until Run is called.
func New(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		opts:   opts,
		logger: logger,
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Run executes queued work on the calling goroutine until ctx is cancelled or Stop
// is called. Work queued before shutdown, including close callbacks, is drained
// before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	if l.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	l.logger.Debug("consumer loop started")
	defer l.logger.Debug("consumer loop stopped")

	for {
		l.drain()

		select {
		case <-l.wakeup:
		case <-l.stopCh:
			l.drain()
			return nil
		case <-ctx.Done():
			l.Stop()
			l.drain()
			return ctx.Err()
		}
	}
}

// Stop prevents new handles from being allocated and makes Run return once the
// queue is drained. Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopped.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stopCh)
	})
}

// Running reports whether a goroutine is currently inside Run.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Post schedules fn on the consumer goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Handles returns the number of open (not yet released) handles.
func (l *Loop) Handles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles
}

// drain runs queued work until the queue is empty. Work posted by running
// callbacks is picked up in the same drain.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		work := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range work {
			fn()
		}
	}
}

func (l *Loop) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.opts.MaxHandles > 0 && l.handles >= l.opts.MaxHandles {
		return ErrHandleLimit
	}
	l.handles++
	return nil
}

func (l *Loop) release() {
	l.mu.Lock()
	if l.handles > 0 {
		l.handles--
	}
	l.mu.Unlock()
}
