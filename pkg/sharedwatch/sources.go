package sharedwatch

import (
	"log/slog"

	"github.com/Aman-CERP/sharedwatch/internal/ignore"
	"github.com/Aman-CERP/sharedwatch/internal/source"
	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

// sourceRef tracks who needs a watcher's source: its callbacks as a whole,
// and each WaitForChange call in progress.
//
// Sources are started and stopped outside the service lock, since a polling
// source scans the whole tree on Start. ready is closed once Start has
// returned, with its result in err.
type sourceRef struct {
	src      source.Source
	watching bool
	waits    int

	ready chan struct{}
	err   error
}

func (r *sourceRef) idle() bool {
	return !r.watching && r.waits == 0
}

// acquireLocked takes a reference on w's source and returns once it is
// running. It is called with s.mu held and returns with s.mu held, but
// releases it while the source starts. On error no reference is held.
func (s *Service) acquireLocked(w *watcher.Watcher, matcher *ignore.Matcher, watching bool) error {
	ref, ok := s.sources[w]
	start := false
	if !ok {
		dir := w.Target().Dir
		src, err := s.newSource(dir, matcher, w.Record)
		if err != nil {
			return sourceStartError(dir, err)
		}
		ref = &sourceRef{src: src, ready: make(chan struct{})}
		s.sources[w] = ref
		start = true
	}
	if watching {
		ref.watching = true
	} else {
		ref.waits++
	}

	s.mu.Unlock()
	if start {
		s.startSource(w, ref)
	}
	<-ref.ready
	s.mu.Lock()

	err := ref.err
	if err == nil && s.closed {
		err = errServiceClosed()
	}
	if err != nil {
		if stale := s.releaseLocked(w, watching); stale != nil {
			// Stopping a source that never started does not block.
			s.stopSource(w, stale)
		}
	}
	return err
}

func (s *Service) startSource(w *watcher.Watcher, ref *sourceRef) {
	dir := w.Target().Dir
	if err := ref.src.Start(s.ctx); err != nil {
		ref.err = sourceStartError(dir, err)
	} else {
		s.logger.Debug("source started", slog.String("dir", dir), slog.String("backend", ref.src.Kind()))
	}
	close(ref.ready)
}

// releaseLocked drops a reference taken by acquireLocked. Once nothing needs
// the source it is removed and returned; the caller passes it to stopSource
// after releasing s.mu. Must be called with s.mu held.
func (s *Service) releaseLocked(w *watcher.Watcher, watching bool) *sourceRef {
	ref, ok := s.sources[w]
	if !ok {
		return nil
	}

	if watching {
		ref.watching = false
	} else if ref.waits > 0 {
		ref.waits--
	}
	if !ref.idle() {
		return nil
	}
	delete(s.sources, w)
	return ref
}

// stopSource stops a source removed by releaseLocked, waiting for a start in
// progress to finish first.
func (s *Service) stopSource(w *watcher.Watcher, ref *sourceRef) {
	if ref == nil {
		return
	}
	<-ref.ready
	if err := ref.src.Stop(); err != nil {
		s.logger.Warn("source stop failed",
			slog.String("dir", w.Target().Dir),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("source stopped", slog.String("dir", w.Target().Dir))
}
