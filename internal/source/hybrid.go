package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
)

// Hybrid uses fsnotify when it can and falls back to polling when the
// notification handle cannot be created or the tree cannot be watched.
type Hybrid struct {
	root    string
	matcher *ignore.Matcher
	sink    Sink
	opts    Options

	mu      sync.Mutex
	active  Source
	stopped bool
}

// NewHybrid creates an auto-selecting source.
func NewHybrid(root string, matcher *ignore.Matcher, sink Sink, opts Options) *Hybrid {
	return &Hybrid{
		root:    absRoot(root),
		matcher: matcher,
		sink:    sink,
		opts:    opts.WithDefaults(),
	}
}

// Start starts fsnotify, or polling if fsnotify fails for a reason other than
// an invalid root.
func (h *Hybrid) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return fmt.Errorf("hybrid source stopped")
	}
	if h.active != nil {
		return nil
	}
	if err := ValidateRoot(h.root); err != nil {
		return err
	}

	fs, err := NewFsnotify(h.root, h.matcher, h.sink, h.opts)
	if err == nil {
		if err = fs.Start(ctx); err == nil {
			h.active = fs
			return nil
		}
		_ = fs.Stop()
	}

	h.opts.Logger.Warn("fsnotify unavailable, falling back to polling",
		slog.String("dir", h.root),
		slog.String("error", err.Error()))

	poll := NewPolling(h.root, h.matcher, h.sink, h.opts)
	if err := poll.Start(ctx); err != nil {
		return err
	}
	h.active = poll
	return nil
}

// Stop stops whichever backend is active.
func (h *Hybrid) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	if h.active == nil {
		return nil
	}
	return h.active.Stop()
}

// Kind returns the backend in use, or "auto" before Start.
func (h *Hybrid) Kind() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == nil {
		return BackendAuto
	}
	return h.active.Kind()
}
