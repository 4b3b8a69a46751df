package watcher

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/Aman-CERP/sharedwatch/internal/debounce"
	"github.com/Aman-CERP/sharedwatch/internal/loop"
)

// Options configures a Registry and the watchers it creates.
type Options struct {
	// Loop is the consumer loop callbacks are delivered on. Required.
	Loop *loop.Loop

	// Coordinator debounces delivery. Default: debounce.Shared()
	Coordinator *debounce.Coordinator

	Logger *slog.Logger
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Coordinator == nil {
		o.Coordinator = debounce.Shared()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Registry holds one live Watcher per distinct Target.
//
// The registry never takes a watcher lock, and watchers release their own
// lock before removing themselves. A watcher torn down but not yet removed can
// still be returned by GetOrCreate; its Register and Wait report
// ErrWatcherClosed and the caller looks the target up again.
type Registry struct {
	opts Options

	mu      sync.Mutex
	buckets map[uint64][]*Watcher
	count   int
}

// NewRegistry creates an empty registry. It panics if opts.Loop is nil.
func NewRegistry(opts Options) *Registry {
	if opts.Loop == nil {
		panic("watcher: registry requires a loop")
	}
	return &Registry{
		opts:    opts.WithDefaults(),
		buckets: make(map[uint64][]*Watcher),
	}
}

// GetOrCreate returns the live watcher equal to target, creating and
// inserting one if none exists. Concurrent callers with equal targets get the
// same watcher.
func (r *Registry) GetOrCreate(target Target) *Watcher {
	h := target.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.buckets[h] {
		if w.target.Equal(target) {
			return w
		}
	}

	w := newWatcher(r, target)
	r.buckets[h] = append(r.buckets[h], w)
	r.count++
	r.opts.Logger.Debug("watcher created", slog.String("target", target.String()))
	return w
}

// Lookup returns the live watcher equal to target, if any.
func (r *Registry) Lookup(target Target) (*Watcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.buckets[target.Hash()] {
		if w.target.Equal(target) {
			return w, true
		}
	}
	return nil, false
}

// Len returns the number of live watchers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Watchers returns a snapshot of the live watchers.
func (r *Registry) Watchers() []*Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Watcher, 0, r.count)
	for _, bucket := range r.buckets {
		out = append(out, bucket...)
	}
	return out
}

// remove drops w by identity. A different watcher with an equal target is
// left alone.
func (r *Registry) remove(w *Watcher) {
	h := w.target.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[h]
	i := slices.Index(bucket, w)
	if i < 0 {
		return
	}
	bucket = slices.Delete(bucket, i, i+1)
	if len(bucket) == 0 {
		delete(r.buckets, h)
	} else {
		r.buckets[h] = bucket
	}
	r.count--
}
