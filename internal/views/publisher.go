package views

import (
	"context"
	"time"

	"agent_workbench/internal/events"
	"agent_workbench/internal/notification/sse"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/logger"
)

// Pusher delivers an event to an agent's open streams.
type Pusher interface {
	Publish(agentID int64, event sse.Event)
}

// SnapshotSource returns the working set of a live session.
type SnapshotSource interface {
	SessionSnapshot(ctx context.Context, sessionID string) (workset.Snapshot, *time.Location, error)
}

// Publisher republishes entity changes to the owning agent's streams and
// follows each settled change with a recomputed dashboard.
type Publisher struct {
	pusher   Pusher
	sessions SnapshotSource
	now      func() time.Time
	log      *logger.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(pusher Pusher, sessions SnapshotSource, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{pusher: pusher, sessions: sessions, now: time.Now, log: log}
}

// RegisterHandlers subscribes the publisher to the change events.
func (p *Publisher) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadChanged{}.EventName(), p)
	bus.Subscribe(events.CallTaskChanged{}.EventName(), p)
	bus.Subscribe(events.CommandOutcome{}.EventName(), p)
}

// Handle implements events.Handler.
func (p *Publisher) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadChanged:
		p.pusher.Publish(e.AgentID, sse.Event{
			Type:   sse.EventLeadChanged,
			LeadID: e.Lead.ID,
			Data: map[string]interface{}{
				"lead":      e.Lead,
				"syncState": e.SyncState,
				"origin":    e.Origin,
			},
		})
		if e.SyncState != string(workset.PendingLocal) {
			p.pushDashboard(ctx, e.SessionID, e.AgentID)
		}
	case events.CallTaskChanged:
		p.pusher.Publish(e.AgentID, sse.Event{
			Type:   sse.EventTaskChanged,
			TaskID: e.Task.ID,
			LeadID: e.Task.LeadID,
			Data:   map[string]interface{}{"task": e.Task, "origin": e.Origin},
		})
		p.pushDashboard(ctx, e.SessionID, e.AgentID)
	case events.CommandOutcome:
		if e.Outcome != events.OutcomeRejected {
			return nil
		}
		p.pusher.Publish(e.AgentID, sse.Event{
			Type:    sse.EventCommandRejected,
			Message: e.Detail,
			Data: map[string]interface{}{
				"command":      e.Command,
				"entity":       e.Entity,
				"entityId":     e.EntityID,
				"errorKind":    e.ErrorKind,
				"remoteStatus": e.RemoteStatus,
			},
		})
	}
	return nil
}

func (p *Publisher) pushDashboard(ctx context.Context, sessionID string, agentID int64) {
	if p.sessions == nil || sessionID == "" {
		return
	}
	snap, loc, err := p.sessions.SessionSnapshot(ctx, sessionID)
	if err != nil {
		// Session ended while the event was in flight.
		p.log.Debug("dashboard skipped", "sessionId", sessionID, "error", err)
		return
	}
	p.pusher.Publish(agentID, sse.Event{
		Type: sse.EventDashboard,
		Data: BuildDashboard(snap, agentID, p.now(), loc),
	})
}
