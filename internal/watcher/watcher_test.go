package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/sharedwatch/internal/debounce"
	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
	"github.com/Aman-CERP/sharedwatch/internal/loop"
)

// harness runs a consumer loop and a coordinator that only fires on Flush, so
// tests decide exactly when a debounce window closes.
type harness struct {
	loop  *loop.Loop
	coord *debounce.Coordinator
	reg   *Registry
}

func newHarness(t *testing.T, loopOpts loop.Options) *harness {
	t.Helper()

	l := loop.New(loopOpts)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(stopped)
	}()

	coord := debounce.New(debounce.Options{MinWait: time.Hour, MaxWait: time.Hour})
	t.Cleanup(func() {
		coord.Stop()
		cancel()
		<-stopped
	})

	return &harness{
		loop:  l,
		coord: coord,
		reg:   NewRegistry(Options{Loop: l, Coordinator: coord}),
	}
}

// collector records every batch delivered to its callback.
type collector struct {
	mu      sync.Mutex
	batches []Batch
	cb      *Callback
}

func newCollector() *collector {
	c := &collector{}
	c.cb = NewCallback(func(b Batch) {
		c.mu.Lock()
		c.batches = append(c.batches, b)
		c.mu.Unlock()
	})
	return c
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *collector) paths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for _, b := range c.batches {
		for _, ev := range b.Events() {
			out[ev.Path]++
		}
	}
	return out
}

func created(path string) FileEvent {
	return FileEvent{Path: path, Operation: OpCreate, Timestamp: time.Now()}
}

func waiterCount(w *Watcher) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiters
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNewRegistry_RequiresLoop(t *testing.T) {
	assert.Panics(t, func() { NewRegistry(Options{}) })
}

func TestRegistry_GetOrCreate_ConcurrentSameTarget(t *testing.T) {
	// Given: a registry
	h := newHarness(t, loop.Options{})

	// When: many goroutines resolve equal targets built in different orders
	const n = 64
	got := make([]*Watcher, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				got[i] = h.reg.GetOrCreate(NewTarget("/src", "a", "b"))
			} else {
				got[i] = h.reg.GetOrCreate(NewTarget("/src/", "b", "a", "a"))
			}
		}(i)
	}
	wg.Wait()

	// Then: all got the same watcher and only one exists
	for i := 1; i < n; i++ {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, h.reg.Len())
}

func TestRegistry_DistinctTargets(t *testing.T) {
	h := newHarness(t, loop.Options{})

	a := h.reg.GetOrCreate(NewTarget("/src"))
	b := h.reg.GetOrCreate(NewTarget("/src", "vendor"))
	c := h.reg.GetOrCreate(NewTarget("/other"))

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, h.reg.Len())
	assert.Len(t, h.reg.Watchers(), 3)

	found, ok := h.reg.Lookup(NewTarget("/src", "vendor"))
	require.True(t, ok)
	assert.Same(t, b, found)
}

func TestWatcher_Register(t *testing.T) {
	// Given: a fresh watcher
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	a, b := newCollector(), newCollector()

	// When/Then: the first registration starts the watch
	first, err := w.Register(a.cb)
	require.NoError(t, err)
	assert.True(t, first)
	assert.True(t, w.Watched())
	assert.Equal(t, 1, h.loop.Handles())
	assert.Equal(t, 1, h.coord.Len())

	// When/Then: later and duplicate registrations do not
	first, err = w.Register(b.cb)
	require.NoError(t, err)
	assert.False(t, first)

	first, err = w.Register(a.cb)
	require.NoError(t, err)
	assert.False(t, first)

	assert.Equal(t, 2, w.Callbacks())
	assert.Equal(t, 1, h.loop.Handles(), "wake allocated once")
}

func TestWatcher_RegisterNilCallback(t *testing.T) {
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	_, err := w.Register(nil)
	require.Error(t, err)
	assert.Equal(t, swerrors.ErrCodeNilCallback, swerrors.GetCode(err))

	_, err = w.Register(NewCallback(nil))
	require.Error(t, err)
	assert.False(t, w.Watched())
}

func TestWatcher_RegisterWakeAllocationFailure(t *testing.T) {
	// Given: a loop that allows a single wake handle, already in use
	h := newHarness(t, loop.Options{MaxHandles: 1})
	busy := h.reg.GetOrCreate(NewTarget("/busy"))
	busyCb := newCollector()
	_, err := busy.Register(busyCb.cb)
	require.NoError(t, err)

	// When: another target tries to start watching
	w := h.reg.GetOrCreate(NewTarget("/src"))
	cb := newCollector()
	first, err := w.Register(cb.cb)

	// Then: resource exhaustion is reported and nothing is retained
	require.Error(t, err)
	assert.False(t, first)
	assert.Equal(t, swerrors.ErrCodeWakeAllocation, swerrors.GetCode(err))
	assert.True(t, swerrors.IsRetryable(err))
	assert.Equal(t, 0, w.Callbacks())
	assert.False(t, w.Watched())

	// When: the busy watcher is released
	require.True(t, busy.Unregister(busyCb.cb))
	require.Eventually(t, func() bool { return h.loop.Handles() == 0 }, time.Second, 5*time.Millisecond)

	// Then: the retry succeeds
	first, err = w.Register(cb.cb)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestWatcher_Unregister(t *testing.T) {
	// Given: a watcher with two callbacks
	h := newHarness(t, loop.Options{})
	target := NewTarget("/src")
	w := h.reg.GetOrCreate(target)
	a, b := newCollector(), newCollector()
	_, _ = w.Register(a.cb)
	_, _ = w.Register(b.cb)

	// When/Then: removing one of two does not tear down
	assert.False(t, w.Unregister(a.cb))
	assert.True(t, w.Watched())

	// When/Then: a double unregister reports false
	assert.False(t, w.Unregister(a.cb))

	// When/Then: removing the last one does
	assert.True(t, w.Unregister(b.cb))
	assert.False(t, w.Watched())
	assert.True(t, w.Closed())
	assert.Equal(t, 0, h.reg.Len())
	assert.Equal(t, 0, h.coord.Len())
	require.Eventually(t, func() bool { return isClosed(w.Done()) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.loop.Handles())

	// Then: the dead watcher refuses registrations and the registry creates a fresh one
	_, err := w.Register(a.cb)
	assert.ErrorIs(t, err, ErrWatcherClosed)
	fresh := h.reg.GetOrCreate(target)
	assert.NotSame(t, w, fresh)
	first, err := fresh.Register(a.cb)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestWatcher_RecordDeliversBatch(t *testing.T) {
	// Given: a watched watcher
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	c := newCollector()
	_, err := w.Register(c.cb)
	require.NoError(t, err)

	// When: events are recorded and the debounce window closes
	w.Record(created("/src/a.go"), created("/src/b.go"))
	require.True(t, h.coord.Flush())

	// Then: both arrive in one batch
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]int{"/src/a.go": 1, "/src/b.go": 1}, c.paths())
	assert.Equal(t, 0, w.Pending())
}

func TestWatcher_SharedStreamReachesEveryCallback(t *testing.T) {
	// Given: two consumers on equal targets
	h := newHarness(t, loop.Options{})
	a, b := newCollector(), newCollector()
	_, _ = h.reg.GetOrCreate(NewTarget("/src", "x")).Register(a.cb)
	first, _ := h.reg.GetOrCreate(NewTarget("/src", "x")).Register(b.cb)
	assert.False(t, first, "second consumer shares the first watch")

	// When: one change is recorded
	w, _ := h.reg.Lookup(NewTarget("/src", "x"))
	w.Record(created("/src/a.go"))
	h.coord.Flush()

	// Then: both see it
	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_NoLostOrDuplicatedEvents(t *testing.T) {
	// Given: a watched watcher
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	c := newCollector()
	_, err := w.Register(c.cb)
	require.NoError(t, err)

	// When: producers record distinct paths while triggers fire concurrently
	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				w.Record(created(fmt.Sprintf("/src/p%d/f%d", p, i)))
			}
		}(p)
	}

	stop := make(chan struct{})
	flusher := make(chan struct{})
	go func() {
		defer close(flusher)
		for {
			select {
			case <-stop:
				return
			default:
				h.coord.Flush()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-flusher

	// Then: every path is delivered exactly once
	require.Eventually(t, func() bool {
		h.coord.Flush()
		return len(c.paths()) == producers*perProducer
	}, 5*time.Second, 10*time.Millisecond)
	for path, n := range c.paths() {
		assert.Equal(t, 1, n, "path %s delivered %d times", path, n)
	}
}

func TestWatcher_ReentrantUnregisterDuringDispatch(t *testing.T) {
	// Given: callbacks [A, B, C]; A removes itself and B, then adds D
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	var calls sync.Map
	count := func(name string) int {
		v, _ := calls.LoadOrStore(name, new(atomic.Int32))
		return int(v.(*atomic.Int32).Load())
	}
	hit := func(name string) {
		v, _ := calls.LoadOrStore(name, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
	}

	var a, b, c, d *Callback
	b = NewCallback(func(Batch) { hit("B") })
	c = NewCallback(func(Batch) { hit("C") })
	d = NewCallback(func(Batch) { hit("D") })
	a = NewCallback(func(Batch) {
		hit("A")
		w.Unregister(a)
		w.Unregister(b)
		_, _ = w.Register(d)
	})
	for _, cb := range []*Callback{a, b, c} {
		_, err := w.Register(cb)
		require.NoError(t, err)
	}

	// When: one batch is dispatched
	w.Record(created("/src/a.go"))
	h.coord.Flush()
	require.Eventually(t, func() bool { return count("C") == 1 }, time.Second, 5*time.Millisecond)

	// Then: A once, B never, C once, D not in this pass
	assert.Equal(t, 1, count("A"))
	assert.Equal(t, 0, count("B"))
	assert.Equal(t, 0, count("D"))
	assert.Equal(t, 2, w.Callbacks())

	// When: a second batch is dispatched
	w.Record(created("/src/b.go"))
	h.coord.Flush()

	// Then: C and D run, A and B stay gone
	require.Eventually(t, func() bool { return count("D") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, count("C"))
	assert.Equal(t, 1, count("A"))
	assert.Equal(t, 0, count("B"))
}

func TestWatcher_TriggerWaitsForDispatchInProgress(t *testing.T) {
	// Given: a callback that blocks inside the first pass
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	var batches []Batch
	cb := NewCallback(func(b Batch) {
		mu.Lock()
		batches = append(batches, b)
		n := len(batches)
		mu.Unlock()
		if n == 1 {
			entered <- struct{}{}
			<-release
		}
	})
	_, err := w.Register(cb)
	require.NoError(t, err)

	w.Record(created("/src/first.go"))
	h.coord.Flush()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first pass never started")
	}

	// When: a new event arrives and a trigger fires during the pass
	w.Record(created("/src/second.go"))
	flushed := make(chan struct{})
	go func() {
		h.coord.Flush()
		close(flushed)
	}()

	// Then: the trigger blocks and the event stays pending
	time.Sleep(50 * time.Millisecond)
	assert.False(t, isClosed(flushed), "trigger must wait for the pass")
	assert.Equal(t, 1, w.Pending())

	// When: the pass ends
	close(release)

	// Then: the trigger completes and the second event is delivered alone
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("trigger never resumed")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	_, ok := batches[0].Get("/src/second.go")
	assert.False(t, ok, "event recorded after the swap must not join the in-flight batch")
	_, ok = batches[1].Get("/src/second.go")
	assert.True(t, ok)
	assert.Equal(t, 1, batches[1].Len())
}

func TestWatcher_OverlappingDispatchPanics(t *testing.T) {
	// Given: a callback that re-enters dispatch
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	var panicked atomic.Bool
	done := make(chan struct{})
	var cb *Callback
	cb = NewCallback(func(Batch) {
		defer close(done)
		func() {
			defer func() {
				if recover() != nil {
					panicked.Store(true)
				}
			}()
			w.dispatch()
		}()
	})
	_, err := w.Register(cb)
	require.NoError(t, err)

	// When: a batch is dispatched
	w.Record(created("/src/a.go"))
	h.coord.Flush()

	// Then: the nested pass panics
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	assert.True(t, panicked.Load())
}

func TestWatcher_DeferredTeardown(t *testing.T) {
	// Given: a callback that unregisters itself during dispatch
	h := newHarness(t, loop.Options{})
	target := NewTarget("/src")
	w := h.reg.GetOrCreate(target)

	type observation struct {
		lastOne      bool
		inRegistry   bool
		wakeReleased bool
		watched      bool
	}
	seen := make(chan observation, 1)
	var cb *Callback
	cb = NewCallback(func(Batch) {
		last := w.Unregister(cb)
		_, inReg := h.reg.Lookup(target)
		w.mu.Lock()
		watched := w.wake != nil
		w.mu.Unlock()
		seen <- observation{
			lastOne:      last,
			inRegistry:   inReg,
			wakeReleased: isClosed(w.Done()),
			watched:      watched,
		}
	})
	_, err := w.Register(cb)
	require.NoError(t, err)

	// When: a batch is dispatched
	w.Record(created("/src/a.go"))
	h.coord.Flush()

	// Then: during the pass nothing has been torn down yet
	var obs observation
	select {
	case obs = <-seen:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	assert.True(t, obs.lastOne)
	assert.True(t, obs.inRegistry)
	assert.True(t, obs.watched)
	assert.False(t, obs.wakeReleased)

	// Then: after the pass the watcher is gone and its wake released
	require.Eventually(t, func() bool { return isClosed(w.Done()) }, time.Second, 5*time.Millisecond)
	_, ok := h.reg.Lookup(target)
	assert.False(t, ok)
	assert.True(t, w.Closed())
	assert.Equal(t, 0, h.loop.Handles())
}

func TestWatcher_WaitBroadcast(t *testing.T) {
	// Given: three goroutines waiting on a watcher with no callbacks
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			errs <- w.Wait(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return waiterCount(w) == 3 }, time.Second, 5*time.Millisecond)

	// When: one change is recorded
	w.Record(created("/src/a.go"))

	// Then: all three are released
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}
	}

	// When: the wait-only user releases the watcher
	w.Unref()

	// Then: it is torn down
	assert.True(t, w.Closed())
	assert.True(t, isClosed(w.Done()))
	assert.Equal(t, 0, h.reg.Len())
	assert.ErrorIs(t, w.Wait(context.Background()), ErrWatcherClosed)
}

func TestWatcher_WaitContextCancelled(t *testing.T) {
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, waiterCount(w))
}

func TestWatcher_WaiterDefersTeardown(t *testing.T) {
	// Given: a watched watcher with a goroutine blocked in Wait
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	c := newCollector()
	_, err := w.Register(c.cb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	waitDone := make(chan error, 1)
	go func() { waitDone <- w.Wait(ctx) }()
	require.Eventually(t, func() bool { return waiterCount(w) == 1 }, time.Second, 5*time.Millisecond)

	// When: the last callback is removed
	assert.True(t, w.Unregister(c.cb))

	// Then: teardown waits for the waiter
	assert.False(t, w.Closed())

	// When: the waiter leaves
	cancel()
	require.ErrorIs(t, <-waitDone, context.Canceled)

	// Then: the deferred teardown runs
	assert.True(t, w.Closed())
	assert.Equal(t, 0, h.reg.Len())
	require.Eventually(t, func() bool { return isClosed(w.Done()) }, time.Second, 5*time.Millisecond)
}

func TestWatcher_IdleWatcherNeverWakes(t *testing.T) {
	// Given: a watcher with no callbacks
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))

	// When: events are recorded
	w.Record(created("/src/a.go"), created("/src/b.go"))

	// Then: no debounce was requested and no wake exists
	assert.False(t, h.coord.Flush())
	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 0, h.loop.Handles())
}

func TestWatcher_RegisterDeliversEventsRecordedWhileWaiting(t *testing.T) {
	// Given: a waiter holding the watcher and a change recorded before any callback
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	waited := make(chan error, 1)
	go func() { waited <- w.Wait(context.Background()) }()
	require.Eventually(t, func() bool { return waiterCount(w) == 1 }, time.Second, time.Millisecond)
	w.Record(created("/src/early.go"))
	require.NoError(t, <-waited)

	// When: the first callback registers and another change arrives
	c := newCollector()
	first, err := w.Register(c.cb)
	require.NoError(t, err)
	require.True(t, first)
	w.Record(created("/src/late.go"))
	h.coord.Flush()

	// Then: both changes are delivered exactly once
	require.Eventually(t, func() bool { return len(c.paths()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]int{"/src/early.go": 1, "/src/late.go": 1}, c.paths())
}

func TestWatcher_RegisterTriggersHeldEvents(t *testing.T) {
	// Given: a change recorded before the first registration
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	w.Record(created("/src/held.go"))
	require.Equal(t, 1, w.Pending())

	// When: a callback registers and the debounce window closes
	c := newCollector()
	_, err := w.Register(c.cb)
	require.NoError(t, err)
	require.True(t, h.coord.Flush(), "registration should request a delivery")

	// Then: the held change is delivered without a further record
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]int{"/src/held.go": 1}, c.paths())
}

func TestWatcher_TeardownReleasesWatcherLockBeforeRegistry(t *testing.T) {
	// Given: a watched watcher and a registry whose lock is held elsewhere
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	c := newCollector()
	_, err := w.Register(c.cb)
	require.NoError(t, err)

	h.reg.mu.Lock()
	unregistered := make(chan bool, 1)
	go func() { unregistered <- w.Unregister(c.cb) }()

	// When/Then: the watcher is closed and its lock is free while removal waits
	require.Eventually(t, w.Closed, time.Second, time.Millisecond)
	h.reg.mu.Unlock()

	assert.True(t, <-unregistered)
	_, ok := h.reg.Lookup(NewTarget("/src"))
	assert.False(t, ok)
}

func TestWatcher_RecordEventsDoesNotTrigger(t *testing.T) {
	// Given: a watched watcher
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	c := newCollector()
	_, _ = w.Register(c.cb)

	// When: events are merged without notification
	w.RecordEvents(created("/src/a.go"))

	// Then: they are pending but no fire is scheduled
	assert.Equal(t, 1, w.Pending())
	assert.False(t, h.coord.Flush())
}

func TestWatcher_RecordAfterTeardownIgnored(t *testing.T) {
	h := newHarness(t, loop.Options{})
	w := h.reg.GetOrCreate(NewTarget("/src"))
	w.Unref()

	w.Record(created("/src/a.go"))
	assert.Equal(t, 0, w.Pending())
}
