// Package source produces file events for a watched directory and hands them
// to a sink, normally a watcher's Record method.
//
// Two backends exist: fsnotify for efficient event-based watching, and polling
// for environments where fsnotify fails (network mounts, Docker volumes, inotify
// limits). The auto backend tries fsnotify first and falls back to polling.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

// Backend names.
const (
	BackendAuto     = "auto"
	BackendFsnotify = "fsnotify"
	BackendPolling  = "polling"
)

// DefaultPollInterval is the scan interval of the polling backend.
const DefaultPollInterval = time.Second

// Sink receives already-filtered events from a source's goroutine.
type Sink func(events ...watcher.FileEvent)

// Source watches one directory.
type Source interface {
	// Start validates the root, installs the watch and returns; events are
	// delivered from a background goroutine until Stop or ctx is done.
	Start(ctx context.Context) error

	// Stop halts the source and waits for its goroutine. Safe to call
	// multiple times.
	Stop() error

	// Kind returns the backend in use.
	Kind() string
}

// Options configures a source.
type Options struct {
	// Backend is auto, fsnotify or polling. Default: auto
	Backend string

	// PollInterval is the interval for the polling backend. Default: 1s
	PollInterval time.Duration

	// Recursive watches subdirectories too.
	Recursive bool

	Logger *slog.Logger
}

// DefaultOptions returns the default source options.
func DefaultOptions() Options {
	return Options{
		Backend:      BackendAuto,
		PollInterval: DefaultPollInterval,
		Recursive:    true,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	switch o.Backend {
	case "", BackendAuto, BackendFsnotify, BackendPolling:
		return nil
	default:
		return fmt.Errorf("unknown source backend %q (want auto, fsnotify or polling)", o.Backend)
	}
}

// Factory builds a source for a directory.
type Factory func(root string, matcher *ignore.Matcher, sink Sink) (Source, error)

// NewFactory returns a Factory using opts for every source.
func NewFactory(opts Options) Factory {
	return func(root string, matcher *ignore.Matcher, sink Sink) (Source, error) {
		return New(root, matcher, sink, opts)
	}
}

// New creates a source for root using the configured backend. matcher may be
// nil to watch everything.
func New(root string, matcher *ignore.Matcher, sink Sink, opts Options) (Source, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	switch opts.Backend {
	case BackendFsnotify:
		return NewFsnotify(root, matcher, sink, opts)
	case BackendPolling:
		return NewPolling(root, matcher, sink, opts), nil
	default:
		return NewHybrid(root, matcher, sink, opts), nil
	}
}

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return swerrors.PathError(root, err).
				WithSuggestion("Check the directory exists before watching it")
		}
		if os.IsPermission(err) {
			return swerrors.New(swerrors.ErrCodePathPermission, fmt.Sprintf("cannot access %s", root), err).
				WithDetail("path", root)
		}
		return swerrors.Wrap(swerrors.ErrCodePathNotFound, err).WithDetail("path", root)
	}
	if !info.IsDir() {
		return swerrors.New(swerrors.ErrCodeNotADirectory, fmt.Sprintf("not a directory: %s", root), nil).
			WithDetail("path", root)
	}
	return nil
}

func absRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}
