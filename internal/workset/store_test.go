package workset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	t.Cleanup(s.Close)
	return s
}

func setStatus(status leaddomain.Status) func(Entry[leaddomain.Lead]) (leaddomain.Lead, error) {
	return func(e Entry[leaddomain.Lead]) (leaddomain.Lead, error) {
		l := e.Value
		l.Status = status
		return l, nil
	}
}

func TestBeginConfirm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusNew}); err != nil {
		t.Fatal(err)
	}

	before, tok, err := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusContacted))
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if before.Value.Status != leaddomain.StatusNew {
		t.Fatalf("expected previous NEW, got %s", before.Value.Status)
	}

	pending, _ := s.Lead(ctx, 1)
	if pending.State != PendingLocal || pending.Value.Status != leaddomain.StatusContacted {
		t.Fatalf("expected pending CONTACTED, got %s %s", pending.State, pending.Value.Status)
	}

	applied, err := s.ConfirmLead(ctx, tok, leaddomain.Lead{ID: 1, Status: leaddomain.StatusContacted, Name: "from remote"})
	if err != nil || !applied {
		t.Fatalf("confirm applied=%v err=%v", applied, err)
	}
	got, _ := s.Lead(ctx, 1)
	if got.State != Confirmed || got.Value.Name != "from remote" {
		t.Fatalf("expected confirmed remote value, got %+v", got)
	}
}

func TestRejectRestoresPreviousValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 42, Status: leaddomain.StatusQualified})

	_, tok, _ := s.BeginLead(ctx, 42, setStatus(leaddomain.StatusContacted))
	restored, applied, err := s.RejectLead(ctx, 42, tok)
	if err != nil || !applied {
		t.Fatalf("reject applied=%v err=%v", applied, err)
	}
	if restored.State != RolledBack || restored.Value.Status != leaddomain.StatusQualified {
		t.Fatalf("expected rolled back to QUALIFIED, got %s %s", restored.State, restored.Value.Status)
	}
}

func TestOlderRejectionDoesNotClobberNewerChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusNew})

	_, first, _ := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusContacted))
	_, second, _ := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusQualified))

	if _, applied, _ := s.RejectLead(ctx, 1, first); applied {
		t.Fatal("stale rejection should not apply")
	}
	got, _ := s.Lead(ctx, 1)
	if got.Value.Status != leaddomain.StatusQualified || got.State != PendingLocal {
		t.Fatalf("newer change lost: %s %s", got.State, got.Value.Status)
	}

	// The newer change now rolls back past the never-confirmed first change.
	restored, applied, _ := s.RejectLead(ctx, 1, second)
	if !applied || restored.Value.Status != leaddomain.StatusNew {
		t.Fatalf("expected rollback to NEW, got applied=%v %s", applied, restored.Value.Status)
	}
}

func TestOlderConfirmationBecomesRollbackTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusNew})

	_, first, _ := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusContacted))
	_, second, _ := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusQualified))

	if applied, _ := s.ConfirmLead(ctx, first, leaddomain.Lead{ID: 1, Status: leaddomain.StatusContacted}); applied {
		t.Fatal("older confirmation should not replace the pending value")
	}
	restored, _, _ := s.RejectLead(ctx, 1, second)
	if restored.Value.Status != leaddomain.StatusContacted {
		t.Fatalf("expected rollback to confirmed CONTACTED, got %s", restored.Value.Status)
	}
}

func TestBeginAbortLeavesEntryUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusConverted})

	boom := errors.New("terminal")
	_, _, err := s.BeginLead(ctx, 1, func(Entry[leaddomain.Lead]) (leaddomain.Lead, error) {
		return leaddomain.Lead{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}
	got, _ := s.Lead(ctx, 1)
	if got.State != Confirmed || got.Value.Status != leaddomain.StatusConverted {
		t.Fatalf("entry changed: %+v", got)
	}
}

func TestBeginUnknownID(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.BeginLead(context.Background(), 99, setStatus(leaddomain.StatusLost))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeKeepsPendingLocalValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusNew})
	_, tok, _ := s.BeginLead(ctx, 1, setStatus(leaddomain.StatusLost))

	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 1, Status: leaddomain.StatusContacted})
	got, _ := s.Lead(ctx, 1)
	if got.Value.Status != leaddomain.StatusLost {
		t.Fatalf("reload overwrote pending change: %s", got.Value.Status)
	}

	restored, _, _ := s.RejectLead(ctx, 1, tok)
	if restored.Value.Status != leaddomain.StatusContacted {
		t.Fatalf("expected rollback to reloaded CONTACTED, got %s", restored.Value.Status)
	}
}

func TestMarkStaleHonoursToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.PutTasks(ctx, calldomain.Task{ID: 5, Status: calldomain.StatusPending})
	_, first, _ := s.BeginTask(ctx, 5, func(e Entry[calldomain.Task]) (calldomain.Task, error) { return e.Value, nil })
	_, _, _ = s.BeginTask(ctx, 5, func(e Entry[calldomain.Task]) (calldomain.Task, error) { return e.Value, nil })

	_ = s.MarkTaskStale(ctx, 5, first)
	got, _ := s.Task(ctx, 5)
	if got.State != PendingLocal {
		t.Fatalf("older token marked entry stale: %s", got.State)
	}

	_ = s.MarkTaskStale(ctx, 5, 0)
	got, _ = s.Task(ctx, 5)
	if got.State != Stale {
		t.Fatalf("expected stale, got %s", got.State)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	notes := "original"
	_ = s.PutLeads(ctx, leaddomain.Lead{ID: 2, Notes: &notes}, leaddomain.Lead{ID: 1})

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Leads) != 2 || snap.Leads[0].ID != 1 {
		t.Fatalf("expected leads ordered by id, got %+v", snap.Leads)
	}
	*snap.Leads[1].Notes = "mutated"

	again, _ := s.Lead(ctx, 2)
	if *again.Value.Notes != "original" {
		t.Fatal("snapshot shares memory with the store")
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			_ = s.PutTasks(ctx, calldomain.Task{ID: id, Status: calldomain.StatusPending, ScheduledTime: time.Now()})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.Snapshot(ctx)
		}()
	}
	wg.Wait()

	snap, _ := s.Snapshot(ctx)
	if len(snap.Tasks) != 50 {
		t.Fatalf("expected 50 tasks, got %d", len(snap.Tasks))
	}
}

func TestClosedStore(t *testing.T) {
	s := NewStore()
	s.Close()
	s.Close()
	if _, err := s.Snapshot(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
