// Package sharedwatch is the public entry point for watching directories.
//
// A Service owns one consumer loop, a registry of shared watchers and the
// event sources feeding them. Any number of callers may watch the same
// directory with the same ignore set; they share one watcher and one source,
// and every callback sees every debounced batch.
//
// Callbacks run only on the goroutine that calls Run:
//
//	svc, err := sharedwatch.New(sharedwatch.Options{})
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	go svc.Run(ctx)
//
//	cb := sharedwatch.NewCallback(func(b sharedwatch.Batch) {
//	    for _, ev := range b.Events() {
//	        fmt.Println(ev.Operation, ev.Path)
//	    }
//	})
//	if _, err := svc.Watch("./src", nil, cb); err != nil {
//	    return err
//	}
//	defer svc.Unwatch("./src", nil, cb)
//
// WaitForChange blocks until the next change under a directory without
// registering a callback:
//
//	if err := svc.WaitForChange(ctx, "./src", nil); err != nil {
//	    return err
//	}
package sharedwatch
