package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type pingEvent struct {
	BaseEvent
	N int
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent(), N: 1})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected joined boom error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishIgnoresCallerCancellation(t *testing.T) {
	bus := NewInMemoryBus(nil)
	seen := make(chan error, 1)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		seen <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pingEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	select {
	case err := <-seen:
		if err != nil {
			t.Fatalf("handler saw cancelled context: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewInMemoryBus(nil)
	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type keyedEvent struct {
	BaseEvent
	Key string
	N   int
}

func (keyedEvent) EventName() string     { return "test.keyed" }
func (e keyedEvent) OrderingKey() string { return e.Key }

func TestPublishKeepsKeyedEventsInOrder(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var (
		mu   sync.Mutex
		seen = map[string][]int{}
	)
	bus.Subscribe("test.keyed", HandlerFunc(func(ctx context.Context, e Event) error {
		k := e.(keyedEvent)
		if k.N%7 == 0 {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		seen[k.Key] = append(seen[k.Key], k.N)
		mu.Unlock()
		return nil
	}))

	const n = 200
	for i := 0; i < n; i++ {
		bus.Publish(context.Background(), keyedEvent{Key: "a", N: i})
		bus.Publish(context.Background(), keyedEvent{Key: "b", N: i})
	}
	bus.Wait()

	for _, key := range []string{"a", "b"} {
		got := seen[key]
		if len(got) != n {
			t.Fatalf("key %s: expected %d events, got %d", key, n, len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("key %s: event %d arrived at position %d", key, v, i)
			}
		}
	}
	if len(bus.queues) != 0 {
		t.Fatalf("expected drained queues to be released, got %d", len(bus.queues))
	}
}
