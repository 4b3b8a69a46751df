// Package profiling captures pprof profiles and execution traces for one CLI
// invocation.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options names the files to write. Empty paths are skipped.
type Options struct {
	// CPU and Trace are recorded from Start until Stop.
	CPU   string
	Trace string

	// Heap and Goroutine are snapshots written by Stop.
	Heap      string
	Goroutine string

	// Block and Mutex enable contention sampling for the session and are
	// written by Stop.
	Block string
	Mutex string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o != Options{}
}

// Session is a running set of profiles.
type Session struct {
	opts      Options
	cpuFile   *os.File
	traceFile *os.File
	prevMutex int
	stopped   bool
}

// Start begins the requested profiles. On error nothing is left running.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		s.cpuFile = f
	}

	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err != nil {
			s.stopRecording()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopRecording()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}

	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if opts.Mutex != "" {
		s.prevMutex = runtime.SetMutexProfileFraction(1)
	}
	return s, nil
}

// Stop ends recording and writes the snapshot profiles. Later calls do
// nothing.
func (s *Session) Stop() error {
	if s == nil || s.stopped {
		return nil
	}
	s.stopped = true
	s.stopRecording()

	var errs []error
	if s.opts.Heap != "" {
		// Collect first so the profile reflects live memory.
		runtime.GC()
		errs = append(errs, writeProfile("heap", s.opts.Heap, 0))
	}
	if s.opts.Goroutine != "" {
		errs = append(errs, writeProfile("goroutine", s.opts.Goroutine, 1))
	}
	if s.opts.Block != "" {
		errs = append(errs, writeProfile("block", s.opts.Block, 0))
		runtime.SetBlockProfileRate(0)
	}
	if s.opts.Mutex != "" {
		errs = append(errs, writeProfile("mutex", s.opts.Mutex, 0))
		runtime.SetMutexProfileFraction(s.prevMutex)
	}
	return errors.Join(errs...)
}

func (s *Session) stopRecording() {
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		_ = s.cpuFile.Close()
		s.cpuFile = nil
	}
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}
}

func writeProfile(name, path string, debug int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.Lookup(name).WriteTo(f, debug); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
