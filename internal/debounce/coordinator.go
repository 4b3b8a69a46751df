// Package debounce provides the shared trigger that coalesces bursts of change
// notifications before watchers swap out and deliver their pending events.
//
// A Coordinator knows nothing about watchers. Listeners register a function with
// Add; anyone may call Trigger. After the first trigger the coordinator waits
// MinWait for the burst to settle, restarting that wait on every further trigger,
// but never delays past MaxWait from the first trigger. When the window closes,
// every listener is invoked (with no coordinator lock held) and each decides for
// itself whether it has work.
package debounce

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMinWait is the quiet period that ends a burst.
	DefaultMinWait = 50 * time.Millisecond
	// DefaultMaxWait caps how long a continuous burst can postpone delivery.
	DefaultMaxWait = 500 * time.Millisecond
)

// ListenerID identifies a registered listener.
type ListenerID uint64

// Options configures a Coordinator.
type Options struct {
	// MinWait is the quiet period after the last trigger. Default: 50ms
	MinWait time.Duration

	// MaxWait bounds the delay after the first trigger of a burst. Default: 500ms
	MaxWait time.Duration

	Logger *slog.Logger
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.MinWait <= 0 {
		o.MinWait = DefaultMinWait
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.MaxWait < o.MinWait {
		o.MaxWait = o.MinWait
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Coordinator fires all registered listeners once per debounced burst.
type Coordinator struct {
	opts Options

	mu        sync.Mutex
	listeners map[ListenerID]func()
	nextID    ListenerID
	timer     *time.Timer
	gen       uint64
	burstFrom time.Time
	stopped   bool

	fires atomic.Uint64
}

var shared = sync.OnceValue(func() *Coordinator {
	return New(Options{})
})

// Shared returns the process-wide coordinator, creating it on first use.
func Shared() *Coordinator {
	return shared()
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		opts:      opts.WithDefaults(),
		listeners: make(map[ListenerID]func()),
	}
}

// Add registers fn and returns its id for Remove.
func (c *Coordinator) Add(fn func()) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.listeners[c.nextID] = fn
	return c.nextID
}

// Remove unregisters a listener. A fire already in progress may still call it.
func (c *Coordinator) Remove(id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// Len returns the number of registered listeners.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Trigger requests a fire. It never blocks on listeners.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	now := time.Now()
	wait := c.opts.MinWait
	if c.timer == nil {
		c.burstFrom = now
	} else {
		c.timer.Stop()
		if deadline := c.burstFrom.Add(c.opts.MaxWait); now.Add(wait).After(deadline) {
			wait = max(deadline.Sub(now), 0)
		}
	}

	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(wait, func() {
		c.fire(gen)
	})
}

// Flush fires immediately if a trigger is pending and reports whether it did.
// Listeners run on the calling goroutine.
func (c *Coordinator) Flush() bool {
	c.mu.Lock()
	if c.timer == nil || c.stopped {
		c.mu.Unlock()
		return false
	}
	c.timer.Stop()
	c.gen++
	listeners := c.takeLocked()
	c.mu.Unlock()

	c.run(listeners)
	return true
}

// Fires returns how many debounced fires have run.
func (c *Coordinator) Fires() uint64 {
	return c.fires.Load()
}

// Stop cancels any pending fire and ignores later triggers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		// Superseded by a later Trigger or a Flush.
		c.mu.Unlock()
		return
	}
	listeners := c.takeLocked()
	c.mu.Unlock()

	c.run(listeners)
}

// takeLocked ends the current burst and snapshots the listeners.
// Must be called with lock held.
func (c *Coordinator) takeLocked() []func() {
	c.timer = nil
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (c *Coordinator) run(listeners []func()) {
	c.fires.Add(1)
	c.opts.Logger.Debug("debounce fired", slog.Int("listeners", len(listeners)))
	for _, fn := range listeners {
		fn()
	}
}
