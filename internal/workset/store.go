// Package workset holds a session's working copy of leads and call tasks.
//
// Every read and write goes through a single goroutine that owns the maps;
// callers send closures over a command channel and wait for them to run.
// Each entry remembers the last confirmed value so a rejected optimistic
// update can be rolled back, and a generation counter so only the command
// that made the newest change can roll it back.
package workset

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
)

// SyncState describes how an entry relates to the system of record.
type SyncState string

const (
	// Confirmed entries match the last value the system of record returned.
	Confirmed SyncState = "confirmed"
	// PendingLocal entries carry a change the system of record has not confirmed yet.
	PendingLocal SyncState = "pending-local"
	// RolledBack entries had a change rejected and were restored.
	RolledBack SyncState = "rejected-rolled-back"
	// Stale entries lost track of the remote outcome and must be re-fetched.
	Stale SyncState = "stale"
)

var (
	// ErrNotFound is returned when an id is not in the working set.
	ErrNotFound = errors.New("workset: entry not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workset: store closed")
)

// Token identifies one optimistic change.
type Token uint64

// Entry is one entity with its synchronisation state.
type Entry[T any] struct {
	Value     T         `json:"value"`
	State     SyncState `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`

	generation Token
	// confirmed is the value to restore when the newest change is rejected.
	confirmed T
}

// Generation returns the token of the newest change applied to the entry.
func (e Entry[T]) Generation() Token { return e.generation }

type table[T any] struct {
	entries map[int64]*Entry[T]
	clone   func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	return &table[T]{entries: make(map[int64]*Entry[T]), clone: clone}
}

func (t *table[T]) view(e *Entry[T]) Entry[T] {
	out := *e
	out.Value = t.clone(e.Value)
	out.confirmed = t.clone(e.confirmed)
	return out
}

// merge stores a value read from the system of record. Entries with an
// unresolved change keep their local value; the remote value becomes the
// rollback target.
func (t *table[T]) merge(id int64, v T, now time.Time) {
	e, ok := t.entries[id]
	if !ok {
		t.entries[id] = &Entry[T]{Value: t.clone(v), confirmed: t.clone(v), State: Confirmed, UpdatedAt: now}
		return
	}
	e.confirmed = t.clone(v)
	if e.State == PendingLocal {
		return
	}
	e.Value = t.clone(v)
	e.State = Confirmed
	e.UpdatedAt = now
}

func (t *table[T]) begin(id int64, gen Token, fn func(Entry[T]) (T, error), now time.Time) (Entry[T], error) {
	e, ok := t.entries[id]
	if !ok {
		return Entry[T]{}, ErrNotFound
	}
	next, err := fn(t.view(e))
	if err != nil {
		return t.view(e), err
	}
	before := t.view(e)
	e.Value = t.clone(next)
	e.State = PendingLocal
	e.generation = gen
	e.UpdatedAt = now
	return before, nil
}

func (t *table[T]) confirm(id int64, tok Token, v T, now time.Time) bool {
	e, ok := t.entries[id]
	if !ok {
		t.entries[id] = &Entry[T]{Value: t.clone(v), confirmed: t.clone(v), State: Confirmed, UpdatedAt: now}
		return true
	}
	e.confirmed = t.clone(v)
	if e.generation != tok {
		// A newer change is in flight; it now rolls back to this value.
		return false
	}
	e.Value = t.clone(v)
	e.State = Confirmed
	e.UpdatedAt = now
	return true
}

func (t *table[T]) reject(id int64, tok Token, now time.Time) (Entry[T], bool) {
	e, ok := t.entries[id]
	if !ok || e.generation != tok {
		if ok {
			return t.view(e), false
		}
		return Entry[T]{}, false
	}
	e.Value = t.clone(e.confirmed)
	e.State = RolledBack
	e.UpdatedAt = now
	return t.view(e), true
}

func (t *table[T]) markStale(id int64, tok Token, now time.Time) {
	e, ok := t.entries[id]
	if !ok {
		return
	}
	if tok != 0 && e.generation != tok {
		return
	}
	e.State = Stale
	e.UpdatedAt = now
}

func (t *table[T]) values() []T {
	ids := make([]int64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.clone(t.entries[id].Value))
	}
	return out
}

type state struct {
	leads *table[leaddomain.Lead]
	tasks *table[calldomain.Task]
	gen   Token
}

func (s *state) nextToken() Token {
	s.gen++
	return s.gen
}

// Snapshot is a consistent copy of the working set.
type Snapshot struct {
	Leads   []leaddomain.Lead
	Tasks   []calldomain.Task
	TakenAt time.Time
}

// Store is the message-passing owner of one session's working set.
type Store struct {
	cmds      chan func(*state)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore starts the owning goroutine. Call Close to stop it.
func NewStore(opts ...Option) *Store {
	s := &Store{
		cmds: make(chan func(*state)),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	st := &state{
		leads: newTable(func(l leaddomain.Lead) leaddomain.Lead { return l.Clone() }),
		tasks: newTable(func(t calldomain.Task) calldomain.Task { return t.Clone() }),
	}
	for {
		select {
		case cmd := <-s.cmds:
			cmd(st)
		case <-s.quit:
			return
		}
	}
}

// Close stops the owning goroutine. Further calls return ErrClosed.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Store) do(ctx context.Context, fn func(*state)) error {
	ran := make(chan struct{})
	select {
	case s.cmds <- func(st *state) { fn(st); close(ran) }:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// PutLeads merges leads read from the system of record.
func (s *Store) PutLeads(ctx context.Context, leads ...leaddomain.Lead) error {
	return s.do(ctx, func(st *state) {
		now := s.now()
		for _, l := range leads {
			st.leads.merge(l.ID, l, now)
		}
	})
}

// Lead returns the entry for id.
func (s *Store) Lead(ctx context.Context, id int64) (Entry[leaddomain.Lead], error) {
	var out Entry[leaddomain.Lead]
	found := false
	err := s.do(ctx, func(st *state) {
		if e, ok := st.leads.entries[id]; ok {
			out, found = st.leads.view(e), true
		}
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, ErrNotFound
	}
	return out, nil
}

// BeginLead atomically checks and applies an optimistic change. fn sees the
// current entry and returns the new local value, or an error to abort.
// The returned entry is the state before the change.
func (s *Store) BeginLead(ctx context.Context, id int64, fn func(Entry[leaddomain.Lead]) (leaddomain.Lead, error)) (Entry[leaddomain.Lead], Token, error) {
	var (
		before Entry[leaddomain.Lead]
		tok    Token
		ferr   error
	)
	err := s.do(ctx, func(st *state) {
		tok = st.nextToken()
		before, ferr = st.leads.begin(id, tok, fn, s.now())
	})
	if err != nil {
		return before, 0, err
	}
	return before, tok, ferr
}

// ConfirmLead records the system of record's value for a change.
// It reports whether the change was still the newest.
func (s *Store) ConfirmLead(ctx context.Context, tok Token, lead leaddomain.Lead) (bool, error) {
	var applied bool
	err := s.do(ctx, func(st *state) {
		applied = st.leads.confirm(lead.ID, tok, lead, s.now())
	})
	return applied, err
}

// RejectLead rolls a change back if it is still the newest.
func (s *Store) RejectLead(ctx context.Context, id int64, tok Token) (Entry[leaddomain.Lead], bool, error) {
	var (
		out     Entry[leaddomain.Lead]
		applied bool
	)
	err := s.do(ctx, func(st *state) {
		out, applied = st.leads.reject(id, tok, s.now())
	})
	return out, applied, err
}

// MarkLeadStale flags a lead for re-fetch. A zero token marks unconditionally.
func (s *Store) MarkLeadStale(ctx context.Context, id int64, tok Token) error {
	return s.do(ctx, func(st *state) { st.leads.markStale(id, tok, s.now()) })
}

// PutTasks merges tasks read from the system of record.
func (s *Store) PutTasks(ctx context.Context, tasks ...calldomain.Task) error {
	return s.do(ctx, func(st *state) {
		now := s.now()
		for _, t := range tasks {
			st.tasks.merge(t.ID, t, now)
		}
	})
}

// Task returns the entry for id.
func (s *Store) Task(ctx context.Context, id int64) (Entry[calldomain.Task], error) {
	var out Entry[calldomain.Task]
	found := false
	err := s.do(ctx, func(st *state) {
		if e, ok := st.tasks.entries[id]; ok {
			out, found = st.tasks.view(e), true
		}
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, ErrNotFound
	}
	return out, nil
}

// BeginTask is BeginLead for call tasks.
func (s *Store) BeginTask(ctx context.Context, id int64, fn func(Entry[calldomain.Task]) (calldomain.Task, error)) (Entry[calldomain.Task], Token, error) {
	var (
		before Entry[calldomain.Task]
		tok    Token
		ferr   error
	)
	err := s.do(ctx, func(st *state) {
		tok = st.nextToken()
		before, ferr = st.tasks.begin(id, tok, fn, s.now())
	})
	if err != nil {
		return before, 0, err
	}
	return before, tok, ferr
}

// ConfirmTask records the system of record's value for a task change.
func (s *Store) ConfirmTask(ctx context.Context, tok Token, task calldomain.Task) (bool, error) {
	var applied bool
	err := s.do(ctx, func(st *state) {
		applied = st.tasks.confirm(task.ID, tok, task, s.now())
	})
	return applied, err
}

// RejectTask rolls a task change back if it is still the newest.
func (s *Store) RejectTask(ctx context.Context, id int64, tok Token) (Entry[calldomain.Task], bool, error) {
	var (
		out     Entry[calldomain.Task]
		applied bool
	)
	err := s.do(ctx, func(st *state) {
		out, applied = st.tasks.reject(id, tok, s.now())
	})
	return out, applied, err
}

// MarkTaskStale flags a task for re-fetch. A zero token marks unconditionally.
func (s *Store) MarkTaskStale(ctx context.Context, id int64, tok Token) error {
	return s.do(ctx, func(st *state) { st.tasks.markStale(id, tok, s.now()) })
}

// Snapshot copies every lead and task in one step, ordered by id.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func(st *state) {
		snap = Snapshot{
			Leads:   st.leads.values(),
			Tasks:   st.tasks.values(),
			TakenAt: s.now(),
		}
	})
	return snap, err
}

// Contains reports which of the given lead and task ids are in the working set.
func (s *Store) Contains(ctx context.Context, leadID, taskID int64) (bool, bool, error) {
	var hasLead, hasTask bool
	err := s.do(ctx, func(st *state) {
		_, hasLead = st.leads.entries[leadID]
		_, hasTask = st.tasks.entries[taskID]
	})
	return hasLead, hasTask, err
}
