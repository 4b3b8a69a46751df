// Package watcher implements the shared watcher registry and the debounced
// handoff of file events from producer goroutines to a single consumer loop.
//
// A Registry hands out one Watcher per distinct Target. Producers call Record
// from any goroutine; the events accumulate in a pending Batch and a debounce
// Coordinator is asked to fire. When it fires, each watcher with callbacks
// moves its pending events to an in-flight batch and sends its wake handle,
// and the consumer loop then invokes every callback with that batch. No lock
// is held while callbacks run, so callbacks may register or unregister
// callbacks on the same watcher, including themselves.
//
// Usage:
//
//	l := loop.New(loop.Options{})
//	go l.Run(ctx)
//
//	reg := watcher.NewRegistry(watcher.Options{Loop: l})
//	w := reg.GetOrCreate(watcher.NewTarget("/src", "/src/.git"))
//
//	cb := watcher.NewCallback(func(b watcher.Batch) {
//	    for _, ev := range b.Events() {
//	        fmt.Println(ev.Operation, ev.Path)
//	    }
//	})
//	first, err := w.Register(cb)
//	if err != nil {
//	    return err
//	}
//	if first {
//	    // start an event source that calls w.Record
//	}
//	defer w.Unregister(cb)
package watcher
