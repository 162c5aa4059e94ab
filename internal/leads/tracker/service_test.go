package tracker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"agent_workbench/internal/events"
	"agent_workbench/internal/leads/domain"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"
)

type fakeRemote struct {
	mu          sync.Mutex
	leads       map[int64]domain.Lead
	nextID      int64
	statusErr   error
	createErr   error
	statusCalls int
	createCalls int
	updateCalls int
	// block, when set, is waited on inside UpdateLeadStatus after entered is closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeRemote(leads ...domain.Lead) *fakeRemote {
	r := &fakeRemote{leads: make(map[int64]domain.Lead), nextID: 100}
	for _, l := range leads {
		r.leads[l.ID] = l
	}
	return r
}

func (r *fakeRemote) ListLeads(ctx context.Context, f domain.Filter) (domain.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]domain.Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		items = append(items, l)
	}
	return domain.Page{Items: items, Page: f.Page, PageSize: f.PageSize, TotalItems: int64(len(items)), TotalPages: 1}, nil
}

func (r *fakeRemote) GetLead(ctx context.Context, id int64) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, apperr.RemoteFetch("get_lead failed", http.StatusNotFound, nil)
	}
	return l, nil
}

func (r *fakeRemote) CreateLead(ctx context.Context, in domain.CreateInput) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return domain.Lead{}, r.createErr
	}
	r.nextID++
	l := domain.Lead{ID: r.nextID, Name: in.Name, Email: in.Email, Phone: in.Phone, LeadSource: in.LeadSource,
		Notes: in.Notes, Status: domain.StatusNew, CreatedAt: time.Now()}
	r.leads[l.ID] = l
	return l, nil
}

func (r *fakeRemote) UpdateLead(ctx context.Context, id int64, patch domain.Patch) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	l := patch.Apply(r.leads[id])
	r.leads[id] = l
	return l, nil
}

func (r *fakeRemote) UpdateLeadStatus(ctx context.Context, id int64, status domain.Status) (domain.Lead, error) {
	if r.block != nil {
		close(r.entered)
		select {
		case <-r.block:
		case <-ctx.Done():
			return domain.Lead{}, apperr.RemoteWrite("update_lead_status failed", 0, ctx.Err())
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCalls++
	if r.statusErr != nil {
		return domain.Lead{}, r.statusErr
	}
	l := r.leads[id]
	l.Status = status
	r.leads[id] = l
	return l, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) outcomes() []events.CommandOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.CommandOutcome
	for _, e := range b.events {
		if o, ok := e.(events.CommandOutcome); ok {
			out = append(out, o)
		}
	}
	return out
}

func (b *recordingBus) leadStates() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		if c, ok := e.(events.LeadChanged); ok {
			out = append(out, c.SyncState)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	remote *fakeRemote
	store  *workset.Store
	bus    *recordingBus
}

func newFixture(t *testing.T, leads ...domain.Lead) fixture {
	t.Helper()
	remote := newFakeRemote(leads...)
	store := workset.NewStore()
	t.Cleanup(store.Close)
	bus := &recordingBus{}
	recorder := outcome.NewRecorder(outcome.Actor{SessionID: "s-1", AgentID: 5}, bus, nil)
	svc := New(remote, store, bus, recorder, validator.New(), phone.NewNormalizer("US"), nil)
	return fixture{svc: svc, remote: remote, store: store, bus: bus}
}

func (f fixture) load(t *testing.T) {
	t.Helper()
	if _, err := f.svc.LoadLeads(context.Background(), domain.Filter{}); err != nil {
		t.Fatalf("LoadLeads: %v", err)
	}
}

func (f fixture) localStatus(t *testing.T, id int64) domain.Status {
	t.Helper()
	entry, err := f.store.Lead(context.Background(), id)
	if err != nil {
		t.Fatalf("lead %d not in working set: %v", id, err)
	}
	return entry.Value.Status
}

func TestChangeStatusBackwardMove(t *testing.T) {
	f := newFixture(t, domain.Lead{ID: 42, Status: domain.StatusQualified})
	f.load(t)

	lead, err := f.svc.ChangeStatus(context.Background(), 42, domain.StatusContacted)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if lead.Status != domain.StatusContacted || f.localStatus(t, 42) != domain.StatusContacted {
		t.Fatalf("expected CONTACTED, got %s", lead.Status)
	}
	entry, _ := f.store.Lead(context.Background(), 42)
	if entry.State != workset.Confirmed {
		t.Fatalf("expected confirmed entry, got %s", entry.State)
	}
	states := f.bus.leadStates()
	if len(states) != 2 || states[0] != string(workset.PendingLocal) || states[1] != string(workset.Confirmed) {
		t.Fatalf("expected pending then confirmed publications, got %v", states)
	}
}

func TestChangeStatusTerminalLock(t *testing.T) {
	for _, terminal := range []domain.Status{domain.StatusConverted, domain.StatusLost} {
		for _, next := range domain.Statuses {
			if next == terminal {
				continue
			}
			t.Run(string(terminal)+"->"+string(next), func(t *testing.T) {
				f := newFixture(t, domain.Lead{ID: 1, Status: terminal})
				f.load(t)

				_, err := f.svc.ChangeStatus(context.Background(), 1, next)
				if !apperr.Is(err, apperr.KindInvalidTransition) {
					t.Fatalf("expected invalid transition, got %v", err)
				}
				if f.remote.statusCalls != 0 {
					t.Fatal("terminal lead move reached the remote")
				}
				if f.localStatus(t, 1) != terminal {
					t.Fatal("terminal lead changed locally")
				}
			})
		}
	}
}

func TestChangeStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture(t, domain.Lead{ID: 1, Status: domain.StatusLost})
	f.load(t)

	lead, err := f.svc.ChangeStatus(context.Background(), 1, domain.StatusLost)
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
	if lead.Status != domain.StatusLost || f.remote.statusCalls != 0 {
		t.Fatalf("no-op reached the remote or changed status")
	}
	outcomes := f.bus.outcomes()
	if len(outcomes) != 1 || outcomes[0].Outcome != events.OutcomeNoop {
		t.Fatalf("expected one noop outcome, got %+v", outcomes)
	}
}

func TestChangeStatusRollsBackOnRejection(t *testing.T) {
	f := newFixture(t, domain.Lead{ID: 1, Status: domain.StatusNew})
	f.load(t)
	f.remote.statusErr = apperr.RemoteWrite("update_lead_status failed", http.StatusInternalServerError, errors.New("boom"))

	_, err := f.svc.ChangeStatus(context.Background(), 1, domain.StatusQualified)
	if !apperr.Is(err, apperr.KindRemoteWrite) {
		t.Fatalf("expected remote write error, got %v", err)
	}
	entry, _ := f.store.Lead(context.Background(), 1)
	if entry.Value.Status != domain.StatusNew || entry.State != workset.RolledBack {
		t.Fatalf("expected rollback to NEW, got %s %s", entry.State, entry.Value.Status)
	}
	if f.remote.statusCalls != 1 {
		t.Fatalf("mutation retried: %d calls", f.remote.statusCalls)
	}
}

func TestChangeStatusAbandonedMarksStale(t *testing.T) {
	f := newFixture(t, domain.Lead{ID: 1, Status: domain.StatusNew})
	f.load(t)
	f.remote.block = make(chan struct{})
	f.remote.entered = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ChangeStatus(ctx, 1, domain.StatusContacted)
		done <- err
	}()
	<-f.remote.entered
	cancel()

	if err := <-done; err == nil {
		t.Fatal("expected error from abandoned call")
	}
	entry, _ := f.store.Lead(context.Background(), 1)
	if entry.State != workset.Stale {
		t.Fatalf("expected stale entry, got %s", entry.State)
	}
}

func TestChangeStatusUnknownLeadAndStatus(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.ChangeStatus(context.Background(), 404, domain.StatusContacted); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.ChangeStatus(context.Background(), 1, domain.Status("ARCHIVED")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateLeadThenLoad(t *testing.T) {
	f := newFixture(t)
	notes := "  referred by Bob "

	created, err := f.svc.CreateLead(context.Background(), domain.CreateInput{
		Name: " Ann Lee ", Email: "ann@example.com", Phone: "(415) 555-2671", LeadSource: "WEBSITE", Notes: &notes,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if created.Status != domain.StatusNew || created.Name != "Ann Lee" || created.Phone != "+14155552671" {
		t.Fatalf("unexpected created lead %+v", created)
	}

	status := domain.StatusNew
	page, err := f.svc.LoadLeads(context.Background(), domain.Filter{Status: &status})
	if err != nil {
		t.Fatalf("LoadLeads: %v", err)
	}
	found := false
	for _, l := range page.Items {
		if l.ID == created.ID && l.Name == "Ann Lee" && l.Email == "ann@example.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("created lead missing from NEW page: %+v", page.Items)
	}
}

func TestCreateLeadValidationNeverReachesRemote(t *testing.T) {
	tests := []struct {
		name string
		in   domain.CreateInput
	}{
		{name: "missing name", in: domain.CreateInput{Name: "  ", Email: "a@b.co", Phone: "4155552671", LeadSource: "WEB"}},
		{name: "bad email", in: domain.CreateInput{Name: "Ann", Email: "nope", Phone: "4155552671", LeadSource: "WEB"}},
		{name: "missing phone", in: domain.CreateInput{Name: "Ann", Email: "a@b.co", LeadSource: "WEB"}},
		{name: "missing source", in: domain.CreateInput{Name: "Ann", Email: "a@b.co", Phone: "4155552671"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateLead(context.Background(), tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if f.remote.createCalls != 0 {
				t.Fatal("invalid lead reached the remote")
			}
		})
	}
}

func TestCreateLeadRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.createErr = apperr.RemoteWrite("create_lead failed", http.StatusBadGateway, nil)

	_, err := f.svc.CreateLead(context.Background(), domain.CreateInput{Name: "Ann", Email: "a@b.co", Phone: "4155552671", LeadSource: "WEB"})
	if !apperr.Is(err, apperr.KindRemoteWrite) {
		t.Fatalf("expected remote write error, got %v", err)
	}
	snap, _ := f.store.Snapshot(context.Background())
	if len(snap.Leads) != 0 {
		t.Fatal("failed create left a lead in the working set")
	}
}

func TestUpdateLeadFields(t *testing.T) {
	f := newFixture(t, domain.Lead{ID: 3, Name: "Old", Status: domain.StatusContacted})
	f.load(t)

	name := "New Name"
	lead, err := f.svc.UpdateLeadFields(context.Background(), 3, domain.Patch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateLeadFields: %v", err)
	}
	if lead.Name != "New Name" || lead.Status != domain.StatusContacted {
		t.Fatalf("unexpected lead %+v", lead)
	}

	if _, err := f.svc.UpdateLeadFields(context.Background(), 3, domain.Patch{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	if _, err := f.svc.UpdateLeadFields(context.Background(), 99, domain.Patch{Name: &name}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.remote.updateCalls != 1 {
		t.Fatalf("expected one remote update, got %d", f.remote.updateCalls)
	}
}

func TestLoadLeadsRejectsNegativePage(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.LoadLeads(context.Background(), domain.Filter{Page: -1}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetLead(context.Background(), 77); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
