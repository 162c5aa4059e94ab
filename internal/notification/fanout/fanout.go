// Package fanout tells other sessions, in this process and on other replicas,
// that a lead or call task changed. Receivers never trust the payload: they
// mark their copy stale and re-read it from the system of record.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agent_workbench/internal/events"
	"agent_workbench/internal/session"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entity kinds carried in a Notice.
const (
	EntityLead = "lead"
	EntityTask = "task"
)

// Notice announces that an entity changed.
type Notice struct {
	Replica   string `json:"replica"`
	SessionID string `json:"sessionId"`
	Entity    string `json:"entity"`
	ID        int64  `json:"id"`
}

// Sessions lists the live sessions of this process.
type Sessions interface {
	Sessions() []*session.Session
}

// Fanout relays change notices between sessions.
type Fanout struct {
	rdb      *redis.Client
	channel  string
	replica  string
	sessions Sessions
	bus      events.Bus
	log      *logger.Logger
}

// Open connects to Redis and checks it answers.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// New creates a Fanout. A nil rdb limits it to sessions of this process.
func New(rdb *redis.Client, channel string, sessions Sessions, bus events.Bus, log *logger.Logger) *Fanout {
	if log == nil {
		log = logger.Discard()
	}
	return &Fanout{
		rdb:      rdb,
		channel:  channel,
		replica:  uuid.NewString(),
		sessions: sessions,
		bus:      bus,
		log:      log,
	}
}

// RegisterHandlers subscribes to locally confirmed changes.
func (f *Fanout) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadChanged{}.EventName(), f)
	bus.Subscribe(events.CallTaskChanged{}.EventName(), f)
}

// Handle implements events.Handler.
func (f *Fanout) Handle(ctx context.Context, event events.Event) error {
	var n Notice
	switch e := event.(type) {
	case events.LeadChanged:
		if e.Origin != events.OriginLocal || e.SyncState != string(workset.Confirmed) {
			return nil
		}
		n = Notice{SessionID: e.SessionID, Entity: EntityLead, ID: e.Lead.ID}
	case events.CallTaskChanged:
		if e.Origin != events.OriginLocal {
			return nil
		}
		n = Notice{SessionID: e.SessionID, Entity: EntityTask, ID: e.Task.ID}
	default:
		return nil
	}
	n.Replica = f.replica

	f.Apply(ctx, n)
	return f.publish(ctx, n)
}

func (f *Fanout) publish(ctx context.Context, n Notice) error {
	if f.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, payload).Err()
}

// Run receives notices from other replicas until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	if f.rdb == nil {
		<-ctx.Done()
		return nil
	}
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}
	f.log.Info("fan-out subscribed", "channel", f.channel, "replica", f.replica)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notice
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				f.log.Warn("fan-out notice dropped", "error", err)
				continue
			}
			if n.Replica == f.replica {
				continue
			}
			f.Apply(ctx, n)
		}
	}
}

// Apply re-reads a changed lead in every session holding it, except the one
// that made the change. Tasks have no single-task read, so they are marked
// stale and reloaded by the next listing or command.
func (f *Fanout) Apply(ctx context.Context, n Notice) {
	for _, sess := range f.sessions.Sessions() {
		if sess.ID == n.SessionID {
			continue
		}
		var leadID, taskID int64
		switch n.Entity {
		case EntityLead:
			leadID = n.ID
		case EntityTask:
			taskID = n.ID
		default:
			return
		}
		hasLead, hasTask, err := sess.Store.Contains(ctx, leadID, taskID)
		if err != nil {
			continue
		}
		switch {
		case hasLead && leadID != 0:
			f.refreshLead(ctx, sess, leadID)
		case hasTask && taskID != 0:
			if err := sess.Store.MarkTaskStale(ctx, taskID, 0); err != nil {
				f.log.Debug("mark task stale failed", "sessionId", sess.ID, "error", err)
			}
		}
	}
}

func (f *Fanout) refreshLead(ctx context.Context, sess *session.Session, id int64) {
	if err := sess.Leads.Refresh(ctx, id); err != nil {
		// The next command on the lead re-fetches it.
		_ = sess.Store.MarkLeadStale(ctx, id, 0)
		f.log.Debug("peer refresh failed", "sessionId", sess.ID, "leadId", id, "error", err)
		return
	}
	entry, err := sess.Store.Lead(ctx, id)
	if err != nil || f.bus == nil {
		return
	}
	f.bus.Publish(ctx, events.LeadChanged{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sess.ID,
		AgentID:   sess.AgentID,
		Lead:      entry.Value,
		SyncState: string(entry.State),
		Origin:    events.OriginPeer,
	})
}
