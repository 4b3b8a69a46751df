package sharedwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Aman-CERP/sharedwatch/internal/config"
	"github.com/Aman-CERP/sharedwatch/internal/debounce"
	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/loop"
	"github.com/Aman-CERP/sharedwatch/internal/source"
	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

type (
	// Batch is the set of coalesced events delivered to callbacks.
	Batch = watcher.Batch
	// FileEvent is one change to one path.
	FileEvent = watcher.FileEvent
	// Callback is a registered handler. Its identity is the pointer.
	Callback = watcher.Callback
	// Operation is the kind of change.
	Operation = watcher.Operation
)

// Operations.
const (
	OpCreate = watcher.OpCreate
	OpModify = watcher.OpModify
	OpDelete = watcher.OpDelete
)

// NewCallback wraps fn in a handle that can be passed to Watch and Unwatch.
func NewCallback(fn func(Batch)) *Callback {
	return watcher.NewCallback(fn)
}

// Options configures a Service.
type Options struct {
	// Config supplies debounce timings, source backend, loop limits and
	// ignore patterns. Default: config.NewConfig()
	Config *config.Config

	Logger *slog.Logger

	// Coordinator overrides the debounce coordinator built from Config.
	// A supplied coordinator is not stopped by Close.
	Coordinator *debounce.Coordinator

	// SourceFactory overrides how event sources are built.
	SourceFactory source.Factory
}

// Stats is a point-in-time view of a Service.
type Stats struct {
	Watchers int    `json:"watchers"`
	Sources  int    `json:"sources"`
	Handles  int    `json:"handles"`
	Fires    uint64 `json:"debounce_fires"`
	Running  bool   `json:"running"`
}

// Service watches directories on behalf of any number of callers.
//
// Service is safe for concurrent use. Callbacks are invoked on the goroutine
// running Run and may call Watch and Unwatch themselves.
type Service struct {
	cfg       *config.Config
	logger    *slog.Logger
	loop      *loop.Loop
	coord     *debounce.Coordinator
	ownCoord  bool
	registry  *watcher.Registry
	matchers  *ignore.Cache
	newSource source.Factory
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	sources map[*watcher.Watcher]*sourceRef
	closed  bool
}

// New creates a Service. Nothing is delivered until Run is called.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	matchers, err := ignore.NewCache(cfg.Ignore.CacheSize)
	if err != nil {
		return nil, swerrors.InternalError("cannot create ignore cache", err)
	}

	coord := opts.Coordinator
	ownCoord := false
	if coord == nil {
		coord = debounce.New(debounce.Options{
			MinWait: cfg.MinWait(),
			MaxWait: cfg.MaxWait(),
			Logger:  logger,
		})
		ownCoord = true
	}

	newSource := opts.SourceFactory
	if newSource == nil {
		newSource = source.NewFactory(source.Options{
			Backend:      cfg.Source.Backend,
			PollInterval: cfg.PollInterval(),
			Recursive:    cfg.Source.Recursive,
			Logger:       logger,
		})
	}

	l := loop.New(loop.Options{
		MaxHandles:   cfg.Loop.MaxHandles,
		LockOSThread: cfg.Loop.LockOSThread,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		logger:    logger,
		loop:      l,
		coord:     coord,
		ownCoord:  ownCoord,
		registry:  watcher.NewRegistry(watcher.Options{Loop: l, Coordinator: coord, Logger: logger}),
		matchers:  matchers,
		newSource: newSource,
		ctx:       ctx,
		cancel:    cancel,
		sources:   make(map[*watcher.Watcher]*sourceRef),
	}, nil
}

// Run runs the consumer loop on the calling goroutine until ctx is done or
// Close is called. Every callback is invoked from here.
func (s *Service) Run(ctx context.Context) error {
	err := s.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Watch registers cb for changes under dir, excluding the ignore entries. It
// reports true when cb is the first callback on that target, in which case an
// event source has been started for it. Watching with a callback that is
// already registered reports false.
func (s *Service) Watch(dir string, ignorePatterns []string, cb *Callback) (bool, error) {
	target, matcher, err := s.resolve(dir, ignorePatterns)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errServiceClosed()
	}

	for {
		w := s.registry.GetOrCreate(target)
		first, err := w.Register(cb)
		if errors.Is(err, watcher.ErrWatcherClosed) {
			continue
		}
		if err != nil {
			// Drop the watcher if nobody else is using it.
			w.Unref()
			return false, err
		}

		if err := s.acquireLocked(w, matcher, true); err != nil {
			w.Unregister(cb)
			return false, err
		}
		if first {
			s.logger.Info("watching", slog.String("dir", target.Dir), slog.Int("ignore", len(target.Ignore())))
		}
		return first, nil
	}
}

// Unwatch removes cb from the target. It reports true when cb was the last
// callback, in which case the target's source is stopped unless a
// WaitForChange call still needs it. A watcher with a WaitForChange in
// progress stays registered, with its wake handle, until that call returns.
// Unwatching a callback or target that is not registered reports false.
func (s *Service) Unwatch(dir string, ignorePatterns []string, cb *Callback) (bool, error) {
	target, err := s.target(dir, ignorePatterns)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, errServiceClosed()
	}

	w, ok := s.registry.Lookup(target)
	if !ok || !w.Unregister(cb) {
		s.mu.Unlock()
		return false, nil
	}
	stale := s.releaseLocked(w, true)
	s.mu.Unlock()

	s.stopSource(w, stale)
	s.logger.Info("unwatched", slog.String("dir", target.Dir))
	return true, nil
}

// WaitForChange blocks until the next change is recorded under dir, ctx is
// done or the service is closed. A source is kept running for the target for
// the duration of the call.
func (s *Service) WaitForChange(ctx context.Context, dir string, ignorePatterns []string) error {
	target, matcher, err := s.resolve(dir, ignorePatterns)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return errServiceClosed()
		}
		w := s.registry.GetOrCreate(target)
		if err := s.acquireLocked(w, matcher, false); err != nil {
			s.mu.Unlock()
			w.Unref()
			return err
		}
		s.mu.Unlock()

		err := w.Wait(ctx)
		w.Unref()

		s.mu.Lock()
		stale := s.releaseLocked(w, false)
		s.mu.Unlock()
		s.stopSource(w, stale)

		if errors.Is(err, watcher.ErrWatcherClosed) {
			continue
		}
		if err != nil && s.ctx.Err() != nil {
			return errServiceClosed()
		}
		return err
	}
}

// Stats returns a snapshot of the service.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	sources := len(s.sources)
	s.mu.Unlock()

	return Stats{
		Watchers: s.registry.Len(),
		Sources:  sources,
		Handles:  s.loop.Handles(),
		Fires:    s.coord.Fires(),
		Running:  s.loop.Running(),
	}
}

// Close stops every source and the consumer loop. Queued deliveries are
// drained by Run before it returns. Later calls return an ERR_504 error.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	refs := s.sources
	s.sources = make(map[*watcher.Watcher]*sourceRef)
	s.mu.Unlock()

	var errs []error
	for _, ref := range refs {
		<-ref.ready
		if err := ref.src.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	s.cancel()
	if s.ownCoord {
		s.coord.Stop()
	}
	s.loop.Stop()
	s.logger.Debug("service closed", slog.Int("sources", len(refs)))
	return errors.Join(errs...)
}

// target builds the registry identity for dir and ignore entries.
func (s *Service) target(dir string, ignorePatterns []string) (watcher.Target, error) {
	if dir == "" {
		return watcher.Target{}, swerrors.ValidationError("directory must not be empty", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return watcher.Target{}, swerrors.Wrap(swerrors.ErrCodePathNotFound, err).WithDetail("path", dir)
	}
	if err := ignore.Validate(ignorePatterns); err != nil {
		return watcher.Target{}, err
	}
	return watcher.NewTarget(abs, ignorePatterns...), nil
}

// resolve validates dir and compiles the matcher used by its source: the
// configured patterns, the target's own entries and, when enabled, the
// directory's .gitignore.
func (s *Service) resolve(dir string, ignorePatterns []string) (watcher.Target, *ignore.Matcher, error) {
	target, err := s.target(dir, ignorePatterns)
	if err != nil {
		return watcher.Target{}, nil, err
	}
	if err := source.ValidateRoot(target.Dir); err != nil {
		return watcher.Target{}, nil, err
	}

	patterns := append(slices.Clone(s.cfg.Ignore.Patterns), target.Ignore()...)
	slices.Sort(patterns)
	patterns = slices.Compact(patterns)

	var gitignore []string
	if s.cfg.Ignore.Gitignore {
		if gitignore, err = ignore.ReadGitignore(target.Dir); err != nil {
			s.logger.Warn("gitignore unreadable, continuing without it",
				slog.String("dir", target.Dir),
				slog.String("error", err.Error()))
		}
	}

	matcher, err := s.matchers.Get(target.Dir, patterns, gitignore...)
	if err != nil {
		return watcher.Target{}, nil, err
	}
	return target, matcher, nil
}

func errServiceClosed() error {
	return swerrors.New(swerrors.ErrCodeServiceClosed, "service is closed", nil)
}

func sourceStartError(dir string, err error) error {
	return swerrors.New(swerrors.ErrCodeSourceStart, fmt.Sprintf("cannot start watching %s", dir), err).
		WithDetail("path", dir).
		WithSuggestion("Try source.backend: polling if native watching is unavailable")
}
