package actorkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestActorProcessesMessagesInOrder(t *testing.T) {
	a := NewActor("test", 8, zap.NewNop())
	a.Start()
	defer a.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 1; i <= 5; i++ {
		i := i
		ok := a.Send(MessageFunc(func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			if i == 5 {
				close(done)
			}
			mu.Unlock()
		}))
		if !ok {
			t.Fatalf("send %d failed", i)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for messages to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("order = %v; want [1 2 3 4 5]", order)
		}
	}
	if got := a.Processed(); got != 5 {
		t.Fatalf("processed = %d; want 5", got)
	}
}

func TestActorRecoversFromPanicAndStaysAlive(t *testing.T) {
	a := NewActor("panicky", 4, zap.NewNop())
	a.Start()
	defer a.Stop()

	done := make(chan struct{})
	a.Send(MessageFunc(func(ctx context.Context) { panic("boom") }))
	a.Send(MessageFunc(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("actor did not process message after a panic")
	}

	if got := a.PanicsRecovered(); got != 1 {
		t.Fatalf("panics recovered = %d; want 1", got)
	}
}

func TestTrySendFailsOnFullMailbox(t *testing.T) {
	a := NewActor("bounded", 1, zap.NewNop())
	// Not started: mailbox fills without ever draining.
	block := make(chan struct{})
	if !a.TrySend(MessageFunc(func(ctx context.Context) { <-block })) {
		t.Fatalf("expected first TrySend to succeed")
	}
	if a.TrySend(MessageFunc(func(ctx context.Context) {})) {
		t.Fatalf("expected second TrySend to fail on a full, undrained mailbox")
	}
	close(block)
}

func TestSendFailsAfterStop(t *testing.T) {
	a := NewActor("stopped", 1, zap.NewNop())
	a.Start()
	a.Stop()
	if a.Send(MessageFunc(func(ctx context.Context) {})) {
		t.Fatalf("expected Send to fail after Stop")
	}
}
