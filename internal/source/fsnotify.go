package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

// Fsnotify is an event-based source.
type Fsnotify struct {
	root    string
	matcher *ignore.Matcher
	sink    Sink
	opts    Options
	logger  *slog.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	errorCount atomic.Uint64
}

// NewFsnotify creates an fsnotify source. It fails when the platform cannot
// provide a notification handle.
func NewFsnotify(root string, matcher *ignore.Matcher, sink Sink, opts Options) (*Fsnotify, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	root = absRoot(root)
	return &Fsnotify{
		root:    root,
		matcher: matcher,
		sink:    sink,
		opts:    opts,
		logger:  opts.Logger.With(slog.String("source", BackendFsnotify), slog.String("dir", root)),
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Kind returns "fsnotify".
func (f *Fsnotify) Kind() string {
	return BackendFsnotify
}

// Start installs watches on the root (and its subdirectories when recursive)
// and begins forwarding events.
func (f *Fsnotify) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return fmt.Errorf("fsnotify source stopped")
	}
	if f.started {
		return nil
	}
	if err := ValidateRoot(f.root); err != nil {
		return err
	}

	if err := f.addTree(f.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	f.started = true
	go f.run(ctx)
	f.logger.Debug("source started")
	return nil
}

func (f *Fsnotify) run(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case event, ok := <-f.fsw.Events:
			if !ok {
				return
			}
			f.handle(event)
		case err, ok := <-f.fsw.Errors:
			if !ok {
				return
			}
			n := f.errorCount.Add(1)
			f.logger.Warn("fsnotify error",
				slog.String("error", err.Error()),
				slog.Uint64("total_errors", n))
		}
	}
}

// handle converts and filters one fsnotify event.
func (f *Fsnotify) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if f.matcher.Match(path) {
		return
	}

	isDir := false
	if info, err := os.Lstat(path); err == nil {
		isDir = info.IsDir()
	}

	var op watcher.Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = watcher.OpCreate
		if isDir && f.opts.Recursive {
			if err := f.addTree(path); err != nil {
				f.logger.Warn("cannot watch new directory",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = watcher.OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename reports the old name; the new name arrives as a create.
		op = watcher.OpDelete
	default:
		// Chmod
		return
	}

	f.sink(watcher.FileEvent{
		Path:      path,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// addTree watches dir and, when recursive, every non-ignored directory below it.
func (f *Fsnotify) addTree(dir string) error {
	if !f.opts.Recursive {
		return f.fsw.Add(dir)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != f.root && f.matcher.Match(path) {
			return filepath.SkipDir
		}
		if err := f.fsw.Add(path); err != nil {
			if path == dir {
				return err
			}
			f.logger.Warn("skipping directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

// Errors returns the number of errors reported by fsnotify so far.
func (f *Fsnotify) Errors() uint64 {
	return f.errorCount.Load()
}

// Stop stops the source and releases the notification handle.
func (f *Fsnotify) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	started := f.started
	close(f.stopCh)
	f.mu.Unlock()

	err := f.fsw.Close()
	if started {
		<-f.done
	}
	f.logger.Debug("source stopped", slog.Uint64("errors", f.Errors()))
	return err
}
