// Package tracker owns a session's lead lifecycle commands: loading pages,
// creating leads, editing fields and moving leads through the funnel.
package tracker

import (
	"context"
	"errors"

	"agent_workbench/internal/events"
	"agent_workbench/internal/leads/domain"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/remote"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	entityLead      = "lead"
)

// Remote is the part of the system-of-record client the tracker uses.
type Remote interface {
	ListLeads(ctx context.Context, f domain.Filter) (domain.Page, error)
	GetLead(ctx context.Context, id int64) (domain.Lead, error)
	CreateLead(ctx context.Context, in domain.CreateInput) (domain.Lead, error)
	UpdateLead(ctx context.Context, id int64, patch domain.Patch) (domain.Lead, error)
	UpdateLeadStatus(ctx context.Context, id int64, status domain.Status) (domain.Lead, error)
}

// Store is the part of the working set the tracker uses.
type Store interface {
	PutLeads(ctx context.Context, leads ...domain.Lead) error
	Lead(ctx context.Context, id int64) (workset.Entry[domain.Lead], error)
	BeginLead(ctx context.Context, id int64, fn func(workset.Entry[domain.Lead]) (domain.Lead, error)) (workset.Entry[domain.Lead], workset.Token, error)
	ConfirmLead(ctx context.Context, tok workset.Token, lead domain.Lead) (bool, error)
	RejectLead(ctx context.Context, id int64, tok workset.Token) (workset.Entry[domain.Lead], bool, error)
	MarkLeadStale(ctx context.Context, id int64, tok workset.Token) error
}

// Service runs lead commands for one session.
type Service struct {
	remote   Remote
	store    Store
	eventBus events.Bus
	recorder *outcome.Recorder
	val      *validator.Validator
	phones   phone.Normalizer
	log      *logger.Logger
}

// New creates a tracker for one session.
func New(remote Remote, store Store, eventBus events.Bus, recorder *outcome.Recorder, val *validator.Validator, phones phone.Normalizer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		remote:   remote,
		store:    store,
		eventBus: eventBus,
		recorder: recorder,
		val:      val,
		phones:   phones,
		log:      log,
	}
}

// LoadLeads fetches one page and merges it into the working set. On failure
// the working set is untouched.
func (s *Service) LoadLeads(ctx context.Context, f domain.Filter) (domain.Page, error) {
	if f.Page < 0 {
		return domain.Page{}, apperr.Validation("page cannot be negative")
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if f.Status != nil && !f.Status.IsKnown() {
		return domain.Page{}, apperr.Validation("unknown lead status").WithDetails(map[string]string{"status": string(*f.Status)})
	}

	page, err := s.remote.ListLeads(ctx, f)
	if err != nil {
		return domain.Page{}, err
	}
	if err := s.store.PutLeads(ctx, page.Items...); err != nil {
		return domain.Page{}, err
	}
	return page, nil
}

// GetLead fetches one lead from the system of record and merges it.
func (s *Service) GetLead(ctx context.Context, id int64) (domain.Lead, error) {
	lead, err := s.fetch(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	entry, err := s.store.Lead(ctx, id)
	if err != nil {
		return lead, nil
	}
	return entry.Value, nil
}

// Entry returns the working-set entry for id without contacting the remote.
func (s *Service) Entry(ctx context.Context, id int64) (workset.Entry[domain.Lead], error) {
	entry, err := s.store.Lead(ctx, id)
	if errors.Is(err, workset.ErrNotFound) {
		return entry, apperr.NotFound("lead not found")
	}
	return entry, err
}

// Lookup returns the session's copy of a lead, fetching it when the working
// set does not hold it or holds a stale copy.
func (s *Service) Lookup(ctx context.Context, id int64) (domain.Lead, error) {
	entry, err := s.store.Lead(ctx, id)
	if err == nil && entry.State != workset.Stale {
		return entry.Value, nil
	}
	if err != nil && !errors.Is(err, workset.ErrNotFound) {
		return domain.Lead{}, err
	}
	return s.fetch(ctx, id)
}

// Refresh re-fetches a lead the working set already holds.
func (s *Service) Refresh(ctx context.Context, id int64) error {
	_, err := s.fetch(ctx, id)
	return err
}

func (s *Service) fetch(ctx context.Context, id int64) (domain.Lead, error) {
	lead, err := s.remote.GetLead(ctx, id)
	if err != nil {
		if remote.IsNotFound(err) {
			return domain.Lead{}, apperr.Wrap(apperr.KindNotFound, "lead not found", err)
		}
		return domain.Lead{}, err
	}
	if err := s.store.PutLeads(ctx, lead); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// CreateLead validates input locally, then creates the lead remotely with status NEW.
func (s *Service) CreateLead(ctx context.Context, in domain.CreateInput) (domain.Lead, error) {
	const command = "create_lead"

	in = in.Normalize()
	if err := s.val.Check(in, "invalid lead"); err != nil {
		s.recorder.Record(ctx, command, entityLead, 0, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}
	in.Phone = s.phones.E164(in.Phone)

	lead, err := s.remote.CreateLead(ctx, in)
	if err != nil {
		s.recorder.Record(ctx, command, entityLead, 0, "", err)
		return domain.Lead{}, err
	}
	// New leads always enter the funnel at NEW.
	lead.Status = domain.StatusNew

	bg := context.WithoutCancel(ctx)
	if err := s.store.PutLeads(bg, lead); err != nil {
		return domain.Lead{}, err
	}
	s.publishLead(bg, lead, workset.Confirmed)
	s.recorder.Record(ctx, command, entityLead, lead.ID, events.OutcomeConfirmed, nil)
	return lead, nil
}

// UpdateLeadFields sends a partial edit and applies it once the system of
// record confirms it.
func (s *Service) UpdateLeadFields(ctx context.Context, id int64, patch domain.Patch) (domain.Lead, error) {
	const command = "update_lead_fields"

	if _, err := s.Entry(ctx, id); err != nil {
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}

	patch = patch.Normalize()
	if patch.IsEmpty() {
		err := apperr.Validation("no fields to update")
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}
	if err := s.val.Check(patch, "invalid lead fields"); err != nil {
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}
	if patch.Phone != nil {
		normalized := s.phones.E164(*patch.Phone)
		patch.Phone = &normalized
	}

	lead, err := s.remote.UpdateLead(ctx, id, patch)
	if err != nil {
		if remote.IsAbandoned(err) {
			_ = s.store.MarkLeadStale(context.WithoutCancel(ctx), id, 0)
		}
		s.recorder.Record(ctx, command, entityLead, id, "", err)
		return domain.Lead{}, err
	}
	if lead.ID == 0 {
		lead.ID = id
	}

	bg := context.WithoutCancel(ctx)
	if err := s.store.PutLeads(bg, lead); err != nil {
		return domain.Lead{}, err
	}
	current := lead
	if entry, err := s.store.Lead(bg, id); err == nil {
		current = entry.Value
		s.publishLead(bg, current, entry.State)
	}
	s.recorder.Record(ctx, command, entityLead, id, events.OutcomeConfirmed, nil)
	return current, nil
}

var errNoop = errors.New("status unchanged")

// ChangeStatus moves a lead to next. The move shows locally at once and is
// rolled back if the system of record rejects it. CONVERTED and LOST leads
// cannot move; asking for the current status is a successful no-op.
func (s *Service) ChangeStatus(ctx context.Context, id int64, next domain.Status) (domain.Lead, error) {
	const command = "change_status"

	if !next.IsKnown() {
		err := apperr.Validation("unknown lead status").WithDetails(map[string]string{"status": string(next)})
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}

	entry, err := s.Entry(ctx, id)
	if err != nil {
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	}
	if entry.State == workset.Stale {
		if err := s.Refresh(ctx, id); err != nil {
			s.recorder.Record(ctx, command, entityLead, id, "", err)
			return domain.Lead{}, err
		}
	}

	before, tok, err := s.store.BeginLead(ctx, id, func(cur workset.Entry[domain.Lead]) (domain.Lead, error) {
		switch domain.CheckTransition(cur.Value.Status, next) {
		case domain.TransitionNoop:
			return cur.Value, errNoop
		case domain.TransitionTerminal:
			return cur.Value, apperr.InvalidTransition("lead is " + string(cur.Value.Status) + " and can no longer change status").
				WithDetails(map[string]string{"from": string(cur.Value.Status), "to": string(next)})
		}
		moved := cur.Value
		moved.Status = next
		return moved, nil
	})
	switch {
	case errors.Is(err, errNoop):
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeNoop, nil)
		return before.Value, nil
	case errors.Is(err, workset.ErrNotFound):
		err = apperr.NotFound("lead not found")
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeInvalid, err)
		return domain.Lead{}, err
	case err != nil:
		s.recorder.Record(ctx, command, entityLead, id, "", err)
		return domain.Lead{}, err
	}

	bg := context.WithoutCancel(ctx)
	optimistic := before.Value
	optimistic.Status = next
	s.publishLead(bg, optimistic, workset.PendingLocal)

	lead, err := s.remote.UpdateLeadStatus(ctx, id, next)
	if err != nil {
		if remote.IsAbandoned(err) {
			_ = s.store.MarkLeadStale(bg, id, tok)
			s.recorder.Record(ctx, command, entityLead, id, events.OutcomeAbandoned, err)
			return domain.Lead{}, err
		}
		if restored, applied, rerr := s.store.RejectLead(bg, id, tok); rerr == nil && applied {
			s.publishLead(bg, restored.Value, workset.RolledBack)
		}
		s.recorder.Record(ctx, command, entityLead, id, events.OutcomeRejected, err)
		return domain.Lead{}, err
	}
	if lead.ID == 0 {
		lead.ID = id
	}

	if _, err := s.store.ConfirmLead(bg, tok, lead); err != nil {
		return domain.Lead{}, err
	}
	s.publishLead(bg, lead, workset.Confirmed)
	if s.eventBus != nil {
		actor := s.recorder.Actor()
		s.eventBus.Publish(bg, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			SessionID: actor.SessionID,
			AgentID:   actor.AgentID,
			LeadID:    id,
			OldStatus: before.Value.Status,
			NewStatus: lead.Status,
		})
	}
	s.recorder.Record(ctx, command, entityLead, id, events.OutcomeConfirmed, nil)
	return lead, nil
}

func (s *Service) publishLead(ctx context.Context, lead domain.Lead, state workset.SyncState) {
	if s.eventBus == nil {
		return
	}
	actor := s.recorder.Actor()
	s.eventBus.Publish(ctx, events.LeadChanged{
		BaseEvent: events.NewBaseEvent(),
		SessionID: actor.SessionID,
		AgentID:   actor.AgentID,
		Lead:      lead,
		SyncState: string(state),
		Origin:    events.OriginLocal,
	})
}
