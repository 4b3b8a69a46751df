package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

// Polling watches for changes by periodically scanning the directory.
type Polling struct {
	root    string
	matcher *ignore.Matcher
	sink    Sink
	opts    Options
	logger  *slog.Logger

	stopCh chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	fileState map[string]fileSnapshot
	started   bool
	stopped   bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPolling creates a polling source.
func NewPolling(root string, matcher *ignore.Matcher, sink Sink, opts Options) *Polling {
	opts = opts.WithDefaults()
	root = absRoot(root)
	return &Polling{
		root:      root,
		matcher:   matcher,
		sink:      sink,
		opts:      opts,
		logger:    opts.Logger.With(slog.String("source", BackendPolling), slog.String("dir", root)),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		fileState: make(map[string]fileSnapshot),
	}
}

// Kind returns "polling".
func (p *Polling) Kind() string {
	return BackendPolling
}

// Start takes the baseline scan and begins polling.
func (p *Polling) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("polling source stopped")
	}
	if p.started {
		return nil
	}
	if err := ValidateRoot(p.root); err != nil {
		return err
	}

	state, err := p.scan()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.fileState = state
	p.started = true

	go p.run(ctx)
	p.logger.Debug("source started", slog.Duration("interval", p.opts.PollInterval))
	return nil
}

func (p *Polling) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			events, err := p.detectChanges()
			if err != nil {
				p.logger.Warn("poll failed", slog.String("error", err.Error()))
				continue
			}
			if len(events) > 0 {
				p.sink(events...)
			}
		}
	}
}

// scan walks the directory and records file state.
func (p *Polling) scan() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil // Skip files we can't access
		}
		if path == p.root {
			return nil
		}
		if p.matcher.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}

		if d.IsDir() && !p.opts.Recursive {
			return filepath.SkipDir
		}
		return nil
	})
	return state, err
}

// detectChanges compares current state with previous state.
func (p *Polling) detectChanges() ([]watcher.FileEvent, error) {
	current, err := p.scan()
	if err != nil {
		return nil, fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var events []watcher.FileEvent
	for path, snap := range current {
		prev, exists := p.fileState[path]
		switch {
		case !exists:
			events = append(events, watcher.FileEvent{Path: path, Operation: watcher.OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			events = append(events, watcher.FileEvent{Path: path, Operation: watcher.OpModify, Timestamp: now})
		}
	}
	for path, snap := range p.fileState {
		if _, exists := current[path]; !exists {
			events = append(events, watcher.FileEvent{Path: path, Operation: watcher.OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}

	p.fileState = current
	return events, nil
}

// Stop stops polling.
func (p *Polling) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.stopCh)
	p.mu.Unlock()

	if started {
		<-p.done
	}
	p.logger.Debug("source stopped")
	return nil
}
