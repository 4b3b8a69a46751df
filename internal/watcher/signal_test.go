package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_NotifyReleasesAllWaiters(t *testing.T) {
	// Given: several goroutines holding the current channel
	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		ch := s.C()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ch
		}()
	}

	// When: notified once
	s.Notify()

	// Then: every waiter returns
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released")
	}
}

func TestSignal_NoStaleNotification(t *testing.T) {
	// Given: a signal that already fired
	s := NewSignal()
	s.Notify()

	// When: waiting afterwards
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Wait(ctx)

	// Then: the earlier notify does not release it
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignal_WaitReturnsOnNotify(t *testing.T) {
	s := NewSignal()
	errCh := make(chan error, 1)
	ch := s.C()
	go func() {
		<-ch
		errCh <- nil
	}()

	s.Notify()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait not released")
	}
}
