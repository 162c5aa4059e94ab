// Package journal appends every command outcome to an audit log that admins
// can page through. The journal is write-only for the workbench: nothing
// reads it to derive lead or task state.
package journal

import (
	"context"
	"embed"
	"errors"
	"time"

	"agent_workbench/internal/events"
	"agent_workbench/platform/logger"

	"github.com/google/uuid"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry is one recorded command outcome.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	OccurredAt   time.Time `json:"occurredAt"`
	SessionID    string    `json:"sessionId"`
	AgentID      int64     `json:"agentId"`
	Command      string    `json:"command"`
	Entity       string    `json:"entity"`
	EntityID     int64     `json:"entityId"`
	Outcome      string    `json:"outcome"`
	ErrorKind    *string   `json:"errorKind,omitempty"`
	RemoteStatus *int      `json:"remoteStatus,omitempty"`
	Detail       *string   `json:"detail,omitempty"`
}

// Query narrows a listing. Entries come newest first.
type Query struct {
	AgentID *int64
	Outcome string
	Limit   int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultListLimit
	case q.Limit > maxListLimit:
		return maxListLimit
	}
	return q.Limit
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
	Ping(ctx context.Context) error
	Close()
}

// FromOutcome builds an entry from a command outcome event.
func FromOutcome(e events.CommandOutcome) Entry {
	entry := Entry{
		ID:         e.EventID,
		OccurredAt: e.OccurredAt(),
		SessionID:  e.SessionID,
		AgentID:    e.AgentID,
		Command:    e.Command,
		Entity:     e.Entity,
		EntityID:   e.EntityID,
		Outcome:    e.Outcome,
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	if e.ErrorKind != "" {
		kind := e.ErrorKind
		entry.ErrorKind = &kind
	}
	if e.RemoteStatus != 0 {
		status := e.RemoteStatus
		entry.RemoteStatus = &status
	}
	if e.Detail != "" {
		detail := e.Detail
		entry.Detail = &detail
	}
	return entry
}

// Recorder appends command outcomes published on the event bus.
type Recorder struct {
	store Store
	log   *logger.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Discard()
	}
	return &Recorder{store: store, log: log}
}

// RegisterHandlers subscribes the recorder to command outcomes.
func (r *Recorder) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.CommandOutcome{}.EventName(), r)
}

// Handle implements events.Handler.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CommandOutcome)
	if !ok {
		return nil
	}
	if err := r.store.Append(ctx, FromOutcome(e)); err != nil {
		r.log.StoreError("journal_append", err)
		return err
	}
	return nil
}

var errNotConfigured = errors.New("journal store not configured")
