package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agent_workbench/platform/logger"
)

// InMemoryBus dispatches events to handlers registered in this process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
	wg       sync.WaitGroup

	qmu    sync.Mutex
	queues map[string]*serialQueue
}

// serialQueue runs the jobs of one ordering key one after another.
type serialQueue struct {
	jobs    []func()
	running bool
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
		queues:   make(map[string]*serialQueue),
	}
}

// Subscribe registers a handler for eventName.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *InMemoryBus) handlersFor(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[eventName]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Publish runs the event's handlers without blocking the caller. Handler
// errors are logged. The handlers see a context detached from the caller's
// cancellation.
//
// Events implementing Ordered with a non-empty key are delivered one at a
// time, in publish order, with respect to every other event carrying the same
// key. Other events run each handler in its own goroutine.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	detached := context.WithoutCancel(ctx)
	handlers := b.handlersFor(event.EventName())
	if len(handlers) == 0 {
		return
	}

	if o, ok := event.(Ordered); ok && o.OrderingKey() != "" {
		b.enqueue(o.OrderingKey(), func() {
			for _, h := range handlers {
				b.run(detached, h, event)
			}
		})
		return
	}

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			b.run(detached, h, event)
		}(h)
	}
}

func (b *InMemoryBus) run(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", event.EventName(), "panic", fmt.Sprint(r))
		}
	}()
	if err := h.Handle(ctx, event); err != nil {
		b.log.Warn("event handler failed", "event", event.EventName(), "error", err)
	}
}

func (b *InMemoryBus) enqueue(key string, job func()) {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	q, ok := b.queues[key]
	if !ok {
		q = &serialQueue{}
		b.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.running {
		return
	}
	q.running = true
	b.wg.Add(1)
	go b.drain(key, q)
}

// drain runs queued jobs until the queue is empty, then forgets the key.
func (b *InMemoryBus) drain(key string, q *serialQueue) {
	defer b.wg.Done()
	for {
		b.qmu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(b.queues, key)
			b.qmu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		b.qmu.Unlock()
		job()
	}
}

// PublishSync runs handlers in registration order and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range b.handlersFor(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until asynchronously published events have been handled.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}
