// Package events provides event bus infrastructure for decoupled,
// event-driven communication between modules.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventName routes the event to its subscribers.
	EventName() string
	OccurredAt() time.Time
}

// Ordered is implemented by events that must reach handlers in publish order
// relative to other events with the same key.
type Ordered interface {
	OrderingKey() string
}

// BaseEvent carries the identity and time of an event.
type BaseEvent struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a new event with a fresh id and the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{EventID: uuid.New(), Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish runs the event's handlers without waiting for them.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the event's handlers and waits for all of them.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers handler for events whose EventName is eventName.
	Subscribe(eventName string, handler Handler)
}
