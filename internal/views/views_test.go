package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	"agent_workbench/internal/events"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/internal/notification/sse"
	"agent_workbench/internal/workset"
)

var now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func lead(id int64, status leaddomain.Status, agent int64, created time.Time) leaddomain.Lead {
	return leaddomain.Lead{ID: id, Name: "lead", Status: status, AgentID: agent, CreatedAt: created}
}

func task(id, leadID int64, status calldomain.Status, at time.Time) calldomain.Task {
	t := calldomain.Task{ID: id, LeadID: leadID, AgentID: 5, Status: status, ScheduledTime: at}
	if status == calldomain.StatusDone {
		done := at.Add(10 * time.Minute)
		t.CompletedAt = &done
	}
	return t
}

func TestStatusCountsCoversEveryStatus(t *testing.T) {
	counts := StatusCounts([]leaddomain.Lead{
		lead(1, leaddomain.StatusNew, 5, now),
		lead(2, leaddomain.StatusNew, 5, now),
		lead(3, leaddomain.StatusLost, 5, now),
	})
	if len(counts) != len(leaddomain.Statuses) {
		t.Fatalf("expected %d entries, got %d", len(leaddomain.Statuses), len(counts))
	}
	want := map[leaddomain.Status]int{leaddomain.StatusNew: 2, leaddomain.StatusLost: 1}
	for _, c := range counts {
		if c.Count != want[c.Status] {
			t.Errorf("%s: got %d want %d", c.Status, c.Count, want[c.Status])
		}
	}
}

func TestKanbanColumnsInFunnelOrder(t *testing.T) {
	cols := Kanban([]leaddomain.Lead{
		lead(1, leaddomain.StatusProposalSent, 5, now),
		lead(2, leaddomain.StatusNew, 5, now),
	})
	titles := []string{"New", "Contacted", "Qualified", "Proposal Sent", "Converted", "Lost"}
	for i, col := range cols {
		if col.Title != titles[i] {
			t.Fatalf("column %d titled %q, want %q", i, col.Title, titles[i])
		}
		if col.Leads == nil {
			t.Fatalf("column %s has nil leads", col.Status)
		}
	}
	if len(cols[3].Leads) != 1 || cols[3].Leads[0].ID != 1 {
		t.Fatalf("proposal column = %+v", cols[3].Leads)
	}
}

func TestBuildDashboard(t *testing.T) {
	snap := workset.Snapshot{
		Leads: []leaddomain.Lead{
			lead(1, leaddomain.StatusNew, 5, now.Add(-6*time.Hour)),
			lead(2, leaddomain.StatusContacted, 5, now.Add(-5*time.Hour)),
			lead(3, leaddomain.StatusNew, 5, now.Add(-4*time.Hour)),
			lead(4, leaddomain.StatusQualified, 5, now.Add(-3*time.Hour)),
			lead(5, leaddomain.StatusLost, 5, now.Add(-2*time.Hour)),
			lead(6, leaddomain.StatusConverted, 5, now.Add(-time.Hour)),
			lead(7, leaddomain.StatusNew, 9, now),
		},
		Tasks: []calldomain.Task{
			task(1, 1, calldomain.StatusPending, now.Add(3*time.Hour)),
			task(2, 2, calldomain.StatusPending, now.Add(time.Hour)),
			task(3, 3, calldomain.StatusDone, now.Add(-time.Hour)),
			task(4, 4, calldomain.StatusCancelled, now.Add(-2*time.Hour)),
			task(5, 1, calldomain.StatusPending, now.Add(24*time.Hour)),
		},
	}

	d := BuildDashboard(snap, 5, now, time.UTC)
	if d.CallsToday != 4 {
		t.Errorf("CallsToday = %d, want 4", d.CallsToday)
	}
	if len(d.PendingToday) != 2 || d.PendingToday[0].ID != 2 || d.PendingToday[1].ID != 1 {
		t.Errorf("PendingToday not sorted by time: %+v", d.PendingToday)
	}
	if len(d.CompletedToday) != 1 || d.CompletedToday[0].ID != 3 {
		t.Errorf("CompletedToday = %+v", d.CompletedToday)
	}
	if d.MyLeads != 6 || d.NewLeads != 2 {
		t.Errorf("MyLeads = %d NewLeads = %d", d.MyLeads, d.NewLeads)
	}
	if len(d.RecentLeads) != 5 || d.RecentLeads[0].ID != 6 || d.RecentLeads[4].ID != 2 {
		t.Errorf("RecentLeads = %+v", d.RecentLeads)
	}
}

func TestBuildCalendarAndHistory(t *testing.T) {
	tasks := []calldomain.Task{
		task(1, 10, calldomain.StatusPending, now.Add(2*time.Hour)),
		task(2, 10, calldomain.StatusDone, now.Add(-time.Hour)),
		task(3, 11, calldomain.StatusCancelled, now),
		task(4, 10, calldomain.StatusPending, now.Add(time.Hour)),
	}

	cal := BuildCalendar(tasks)
	if len(cal.Pending) != 2 || cal.Pending[0].ID != 4 || len(cal.Done) != 1 || len(cal.Cancelled) != 1 {
		t.Fatalf("unexpected calendar %+v", cal)
	}

	history := LeadHistory(tasks, 10)
	if len(history) != 3 || history[0].ID != 1 || history[2].ID != 2 {
		t.Fatalf("unexpected history %+v", history)
	}
	if got := LeadHistory(tasks, 99); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history, got %+v", got)
	}
}

func TestBuildAdminStats(t *testing.T) {
	tests := []struct {
		name  string
		leads []leaddomain.Lead
		want  float64
	}{
		{name: "no leads", want: 0},
		{name: "one in three", leads: []leaddomain.Lead{
			lead(1, leaddomain.StatusConverted, 5, now),
			lead(2, leaddomain.StatusNew, 5, now),
			lead(3, leaddomain.StatusLost, 6, now),
		}, want: 33.3},
		{name: "all converted", leads: []leaddomain.Lead{lead(1, leaddomain.StatusConverted, 5, now)}, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := BuildAdminStats(workset.Snapshot{Leads: tt.leads}, now, time.UTC)
			if stats.ConversionRate != tt.want {
				t.Fatalf("ConversionRate = %v, want %v", stats.ConversionRate, tt.want)
			}
			if stats.TotalLeads != len(tt.leads) {
				t.Fatalf("TotalLeads = %d", stats.TotalLeads)
			}
		})
	}
}

type capturePusher struct {
	mu     sync.Mutex
	events map[int64][]sse.Event
}

func (c *capturePusher) Publish(agentID int64, e sse.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = make(map[int64][]sse.Event)
	}
	c.events[agentID] = append(c.events[agentID], e)
}

func (c *capturePusher) types(agentID int64) []sse.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sse.EventType
	for _, e := range c.events[agentID] {
		out = append(out, e.Type)
	}
	return out
}

type staticSessions map[string]workset.Snapshot

func (s staticSessions) SessionSnapshot(ctx context.Context, id string) (workset.Snapshot, *time.Location, error) {
	snap, ok := s[id]
	if !ok {
		return workset.Snapshot{}, nil, errors.New("no session")
	}
	return snap, time.UTC, nil
}

func TestPublisherPushesChangeThenDashboard(t *testing.T) {
	pusher := &capturePusher{}
	sessions := staticSessions{"s-1": {Leads: []leaddomain.Lead{lead(1, leaddomain.StatusContacted, 5, now)}}}
	p := NewPublisher(pusher, sessions, nil)

	pending := events.LeadChanged{SessionID: "s-1", AgentID: 5, Lead: lead(1, leaddomain.StatusContacted, 5, now), SyncState: string(workset.PendingLocal)}
	confirmed := pending
	confirmed.SyncState = string(workset.Confirmed)
	rejected := events.CommandOutcome{SessionID: "s-1", AgentID: 5, Command: "change_status", Outcome: events.OutcomeRejected}
	invalid := events.CommandOutcome{SessionID: "s-1", AgentID: 5, Command: "change_status", Outcome: events.OutcomeInvalid}

	for _, e := range []events.Event{pending, confirmed, rejected, invalid} {
		if err := p.Handle(context.Background(), e); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	got := pusher.types(5)
	want := []sse.EventType{sse.EventLeadChanged, sse.EventLeadChanged, sse.EventDashboard, sse.EventCommandRejected}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPublisherSkipsDashboardForEndedSession(t *testing.T) {
	pusher := &capturePusher{}
	p := NewPublisher(pusher, staticSessions{}, nil)

	_ = p.Handle(context.Background(), events.CallTaskChanged{SessionID: "gone", AgentID: 5, Task: task(1, 1, calldomain.StatusPending, now)})

	got := pusher.types(5)
	if len(got) != 1 || got[0] != sse.EventTaskChanged {
		t.Fatalf("got %v", got)
	}
}

func (c *capturePusher) lastLeadState(agentID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := ""
	for _, e := range c.events[agentID] {
		if e.Type != sse.EventLeadChanged {
			continue
		}
		if data, ok := e.Data.(map[string]interface{}); ok {
			state, _ = data["syncState"].(string)
		}
	}
	return state
}

func TestPublisherDeliversSettledStateLast(t *testing.T) {
	sessions := staticSessions{"s-1": {Leads: []leaddomain.Lead{lead(42, leaddomain.StatusContacted, 5, now)}}}

	for _, final := range []workset.SyncState{workset.Confirmed, workset.RolledBack} {
		for i := 0; i < 200; i++ {
			bus := events.NewInMemoryBus(nil)
			pusher := &capturePusher{}
			NewPublisher(pusher, sessions, nil).RegisterHandlers(bus)

			pending := events.LeadChanged{SessionID: "s-1", AgentID: 5, Lead: lead(42, leaddomain.StatusContacted, 5, now), SyncState: string(workset.PendingLocal)}
			settled := pending
			settled.SyncState = string(final)
			bus.Publish(context.Background(), pending)
			bus.Publish(context.Background(), settled)
			bus.Wait()

			if got := pusher.lastLeadState(5); got != string(final) {
				t.Fatalf("run %d: agent last saw %q, want %q", i, got, final)
			}
		}
	}
}
