package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	"agent_workbench/internal/events"
	"agent_workbench/internal/leads/domain"
	"agent_workbench/internal/leads/tracker"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/session"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// recordRemote serves whatever lead the test last stored.
type recordRemote struct {
	mu    sync.Mutex
	leads map[int64]domain.Lead
	gets  int
}

func (r *recordRemote) set(l domain.Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[l.ID] = l
}

func (r *recordRemote) ListLeads(context.Context, domain.Filter) (domain.Page, error) {
	return domain.Page{}, nil
}

func (r *recordRemote) GetLead(ctx context.Context, id int64) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	return r.leads[id], nil
}

func (r *recordRemote) CreateLead(context.Context, domain.CreateInput) (domain.Lead, error) {
	return domain.Lead{}, nil
}

func (r *recordRemote) UpdateLead(context.Context, int64, domain.Patch) (domain.Lead, error) {
	return domain.Lead{}, nil
}

func (r *recordRemote) UpdateLeadStatus(context.Context, int64, domain.Status) (domain.Lead, error) {
	return domain.Lead{}, nil
}

type sessionList []*session.Session

func (s sessionList) Sessions() []*session.Session { return s }

func newSession(t *testing.T, id string, remote *recordRemote, leads ...domain.Lead) *session.Session {
	t.Helper()
	store := workset.NewStore()
	t.Cleanup(store.Close)
	if err := store.PutLeads(context.Background(), leads...); err != nil {
		t.Fatalf("PutLeads: %v", err)
	}
	rec := outcome.NewRecorder(outcome.Actor{SessionID: id, AgentID: 5}, nil, nil)
	return &session.Session{
		ID:      id,
		AgentID: 5,
		Store:   store,
		Leads:   tracker.New(remote, store, nil, rec, validator.New(), phone.NewNormalizer("US"), nil),
	}
}

func leadStatus(t *testing.T, s *session.Session, id int64) domain.Status {
	t.Helper()
	e, err := s.Store.Lead(context.Background(), id)
	if err != nil {
		t.Fatalf("lead %d missing: %v", id, err)
	}
	return e.Value.Status
}

func confirmedChange(sessionID string, lead domain.Lead) events.LeadChanged {
	return events.LeadChanged{
		SessionID: sessionID,
		AgentID:   5,
		Lead:      lead,
		SyncState: string(workset.Confirmed),
		Origin:    events.OriginLocal,
	}
}

func TestApplyRefreshesOtherLocalSessions(t *testing.T) {
	remote := &recordRemote{leads: map[int64]domain.Lead{}}
	origin := newSession(t, "a", remote, domain.Lead{ID: 1, Status: domain.StatusContacted})
	other := newSession(t, "b", remote, domain.Lead{ID: 1, Status: domain.StatusNew})
	unrelated := newSession(t, "c", remote)
	remote.set(domain.Lead{ID: 1, Status: domain.StatusContacted})

	f := New(nil, "workbench:changes", sessionList{origin, other, unrelated}, nil, nil)
	if err := f.Handle(context.Background(), confirmedChange("a", domain.Lead{ID: 1, Status: domain.StatusContacted})); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if got := leadStatus(t, other, 1); got != domain.StatusContacted {
		t.Fatalf("other session still sees %s", got)
	}
	if remote.gets != 1 {
		t.Fatalf("expected one re-read, got %d", remote.gets)
	}
}

func TestPendingChangesAreNotAnnounced(t *testing.T) {
	remote := &recordRemote{leads: map[int64]domain.Lead{}}
	other := newSession(t, "b", remote, domain.Lead{ID: 1, Status: domain.StatusNew})
	f := New(nil, "workbench:changes", sessionList{other}, nil, nil)

	change := confirmedChange("a", domain.Lead{ID: 1, Status: domain.StatusLost})
	change.SyncState = string(workset.PendingLocal)
	_ = f.Handle(context.Background(), change)

	if remote.gets != 0 {
		t.Fatal("pending change triggered a re-read")
	}
}

func TestTaskNoticeMarksStale(t *testing.T) {
	remote := &recordRemote{leads: map[int64]domain.Lead{}}
	other := newSession(t, "b", remote)
	_ = other.Store.PutTasks(context.Background(), taskFixture(7))
	f := New(nil, "workbench:changes", sessionList{other}, nil, nil)

	f.Apply(context.Background(), Notice{SessionID: "a", Entity: EntityTask, ID: 7})

	e, err := other.Store.Task(context.Background(), 7)
	if err != nil || e.State != workset.Stale {
		t.Fatalf("expected stale task, got %+v %v", e, err)
	}
}

func TestNoticesCrossReplicasThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	remote := &recordRemote{leads: map[int64]domain.Lead{}}
	peer := newSession(t, "b", remote, domain.Lead{ID: 1, Status: domain.StatusQualified})
	remote.set(domain.Lead{ID: 1, Status: domain.StatusConverted})

	sender := New(newClient(), "workbench:changes", sessionList{}, nil, nil)
	receiver := New(newClient(), "workbench:changes", sessionList{peer}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = receiver.Run(ctx) }()

	waitFor(t, func() bool { return mr.PubSubNumSub("workbench:changes")["workbench:changes"] == 1 })

	if err := sender.Handle(ctx, confirmedChange("a", domain.Lead{ID: 1, Status: domain.StatusConverted})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	waitFor(t, func() bool { return leadStatus(t, peer, 1) == domain.StatusConverted })
}

func taskFixture(id int64) calldomain.Task {
	return calldomain.Task{ID: id, LeadID: 1, Status: calldomain.StatusPending, ScheduledTime: time.Now()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
