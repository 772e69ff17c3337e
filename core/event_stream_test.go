package core

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestSubscribeCancelReleasesContextWatcher(t *testing.T) {
	stream := newEventStream(8)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	before := runtime.NumGoroutine()
	for i := 0; i < 64; i++ {
		updates, cancel, _, err := stream.subscribe(ctx, "")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		cancel()
		if _, open := <-updates; open {
			t.Fatalf("cancelled subscription still open")
		}
	}
	if after := runtime.NumGoroutine(); after > before+4 {
		t.Fatalf("cancelled subscriptions left %d goroutines behind", after-before)
	}
	stream.mu.Lock()
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no subscribers, got %d", remaining)
	}
}

func TestSubscribeClosesWhenContextDone(t *testing.T) {
	stream := newEventStream(8)
	ctx, cancelCtx := context.WithCancel(context.Background())
	updates, cancel, _, err := stream.subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	cancelCtx()
	select {
	case _, open := <-updates:
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after context cancellation")
	}
	cancel()
}
