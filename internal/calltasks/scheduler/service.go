// Package scheduler owns a session's call task commands: listing, scheduling,
// completing and cancelling outbound calls.
package scheduler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"agent_workbench/internal/calltasks/domain"
	"agent_workbench/internal/events"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/remote"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/sanitize"
	"agent_workbench/platform/validator"
)

const entityTask = "call_task"

// Remote is the part of the system-of-record client the scheduler uses.
type Remote interface {
	ListTasks(ctx context.Context, agentID *int64) ([]domain.Task, error)
	ListTodayTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, leadID, agentID int64, at time.Time, notes *string) (domain.Task, error)
	CompleteTask(ctx context.Context, id int64, notes *string) (domain.Task, error)
	CancelTask(ctx context.Context, id int64) (domain.Task, error)
}

// Store is the part of the working set the scheduler uses.
type Store interface {
	PutTasks(ctx context.Context, tasks ...domain.Task) error
	Task(ctx context.Context, id int64) (workset.Entry[domain.Task], error)
	BeginTask(ctx context.Context, id int64, fn func(workset.Entry[domain.Task]) (domain.Task, error)) (workset.Entry[domain.Task], workset.Token, error)
	ConfirmTask(ctx context.Context, tok workset.Token, task domain.Task) (bool, error)
	RejectTask(ctx context.Context, id int64, tok workset.Token) (workset.Entry[domain.Task], bool, error)
	MarkTaskStale(ctx context.Context, id int64, tok workset.Token) error
}

// Leads resolves the lead a call is scheduled against.
type Leads interface {
	Lookup(ctx context.Context, id int64) (leaddomain.Lead, error)
}

// Settings are the per-session scheduling rules.
type Settings struct {
	// AgentID is used when a schedule request names no agent.
	AgentID int64
	// Location defines the calendar day for ListToday.
	Location *time.Location
	// ClosedLeadPolicy is config.ClosedLeadCallsAllow or config.ClosedLeadCallsBlock.
	ClosedLeadPolicy string
	CancelEnabled    bool
	Now              func() time.Time
}

// Service runs call task commands for one session.
type Service struct {
	remote   Remote
	store    Store
	leads    Leads
	eventBus events.Bus
	recorder *outcome.Recorder
	val      *validator.Validator
	settings Settings
	log      *logger.Logger
}

// New creates a scheduler for one session.
func New(remote Remote, store Store, leads Leads, eventBus events.Bus, recorder *outcome.Recorder, val *validator.Validator, settings Settings, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if settings.ClosedLeadPolicy == "" {
		settings.ClosedLeadPolicy = config.ClosedLeadCallsAllow
	}
	return &Service{
		remote:   remote,
		store:    store,
		leads:    leads,
		eventBus: eventBus,
		recorder: recorder,
		val:      val,
		settings: settings,
		log:      log,
	}
}

// ListTasks fetches tasks, merges them into the working set and applies the
// date range locally.
func (s *Service) ListTasks(ctx context.Context, f domain.Filter) ([]domain.Task, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.Validation("from must be before to")
	}
	tasks, err := s.remote.ListTasks(ctx, f.AgentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutTasks(ctx, tasks...); err != nil {
		return nil, err
	}
	out := domain.InRange(tasks, f.From, f.To)
	domain.SortBySchedule(out)
	return out, nil
}

// ListToday returns tasks scheduled on the session's current calendar day.
func (s *Service) ListToday(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.remote.ListTodayTasks(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutTasks(ctx, tasks...); err != nil {
		return nil, err
	}
	out := domain.OnDay(tasks, s.settings.Now(), s.settings.Location)
	domain.SortBySchedule(out)
	return out, nil
}

// ScheduleCall creates a PENDING call task for a lead. Past times are accepted.
func (s *Service) ScheduleCall(ctx context.Context, in domain.ScheduleInput) (domain.Task, error) {
	const command = "schedule_call"

	in.Notes = sanitize.TextPtr(in.Notes)
	if err := s.val.Check(in, "invalid call task"); err != nil {
		s.recorder.Record(ctx, command, entityTask, 0, events.OutcomeInvalid, err)
		return domain.Task{}, err
	}
	at, err := domain.ParseScheduledTime(in.ScheduledTime, s.settings.Location)
	if err != nil {
		verr := apperr.Validation("invalid scheduled time").WithDetails(map[string]string{"scheduledTime": err.Error()})
		s.recorder.Record(ctx, command, entityTask, 0, events.OutcomeInvalid, verr)
		return domain.Task{}, verr
	}
	agentID := in.AgentID
	if agentID == 0 {
		agentID = s.settings.AgentID
	}

	lead, err := s.leads.Lookup(ctx, in.LeadID)
	if err != nil {
		s.recorder.Record(ctx, command, entityTask, 0, "", err)
		return domain.Task{}, err
	}
	if lead.Status.IsTerminal() && s.settings.ClosedLeadPolicy == config.ClosedLeadCallsBlock {
		err := apperr.InvalidState("lead is " + string(lead.Status) + " and no longer takes calls").
			WithDetails(map[string]string{"leadId": strconv.FormatInt(lead.ID, 10), "status": string(lead.Status)})
		s.recorder.Record(ctx, command, entityTask, 0, events.OutcomeInvalid, err)
		return domain.Task{}, err
	}

	task, err := s.remote.CreateTask(ctx, in.LeadID, agentID, at, in.Notes)
	if err != nil {
		s.recorder.Record(ctx, command, entityTask, 0, "", err)
		return domain.Task{}, err
	}
	if task.Status == "" {
		task.Status = domain.StatusPending
	}
	if task.Status != domain.StatusPending || task.CompletedAt != nil {
		err := apperr.RemoteWrite("system of record created a task that is not pending", http.StatusOK, domain.ErrCompletionInvariant)
		s.recorder.Record(ctx, command, entityTask, task.ID, events.OutcomeRejected, err)
		return domain.Task{}, err
	}
	if task.LeadName == "" {
		task.LeadName = lead.Name
	}
	if task.LeadPhone == "" {
		task.LeadPhone = lead.Phone
	}

	bg := context.WithoutCancel(ctx)
	if err := s.store.PutTasks(bg, task); err != nil {
		return domain.Task{}, err
	}
	s.publishTask(bg, task)
	s.recorder.Record(ctx, command, entityTask, task.ID, events.OutcomeConfirmed, nil)
	return task, nil
}

// CompleteCall marks a PENDING task DONE. The task stays PENDING locally until
// the system of record confirms and supplies completedAt.
func (s *Service) CompleteCall(ctx context.Context, id int64, notes *string) (domain.Task, error) {
	notes = sanitize.TextPtr(notes)
	return s.resolve(ctx, "complete_call", id, domain.StatusDone,
		func(cur domain.Task) domain.Task { return cur },
		func(ctx context.Context) (domain.Task, error) { return s.remote.CompleteTask(ctx, id, notes) })
}

// CancelCall marks a PENDING task CANCELLED. Disabled deployments fail
// without touching state or the remote.
func (s *Service) CancelCall(ctx context.Context, id int64) (domain.Task, error) {
	const command = "cancel_call"
	if !s.settings.CancelEnabled {
		err := apperr.Unsupported("cancelling calls is not enabled")
		s.recorder.Record(ctx, command, entityTask, id, events.OutcomeInvalid, err)
		return domain.Task{}, err
	}
	return s.resolve(ctx, command, id, domain.StatusCancelled,
		func(cur domain.Task) domain.Task {
			cancelled, _ := domain.Cancel(cur)
			return cancelled
		},
		func(ctx context.Context) (domain.Task, error) { return s.remote.CancelTask(ctx, id) })
}

// resolve runs a PENDING -> target command. optimistic gives the local value
// shown while the remote call is in flight.
func (s *Service) resolve(ctx context.Context, command string, id int64, target domain.Status,
	optimistic func(domain.Task) domain.Task, send func(context.Context) (domain.Task, error)) (domain.Task, error) {

	entry, err := s.store.Task(ctx, id)
	if errors.Is(err, workset.ErrNotFound) {
		err = apperr.NotFound("call task not found")
	}
	if err != nil {
		s.recorder.Record(ctx, command, entityTask, id, events.OutcomeInvalid, err)
		return domain.Task{}, err
	}
	if entry.State == workset.Stale {
		if err := s.refresh(ctx, entry.Value.AgentID); err != nil {
			s.recorder.Record(ctx, command, entityTask, id, "", err)
			return domain.Task{}, err
		}
	}

	before, tok, err := s.store.BeginTask(ctx, id, func(cur workset.Entry[domain.Task]) (domain.Task, error) {
		if cur.State == workset.PendingLocal {
			return cur.Value, apperr.InvalidState("call task already has a change in flight").
				WithDetails(map[string]string{"status": string(cur.Value.Status)})
		}
		if !domain.CanResolve(cur.Value) {
			return cur.Value, apperr.InvalidState("call task is " + string(cur.Value.Status)).
				WithDetails(map[string]string{"status": string(cur.Value.Status), "target": string(target)})
		}
		return optimistic(cur.Value), nil
	})
	if errors.Is(err, workset.ErrNotFound) {
		err = apperr.NotFound("call task not found")
	}
	if err != nil {
		s.recorder.Record(ctx, command, entityTask, id, events.OutcomeInvalid, err)
		return domain.Task{}, err
	}

	bg := context.WithoutCancel(ctx)
	task, err := send(ctx)
	if err != nil {
		if remote.IsAbandoned(err) {
			_ = s.store.MarkTaskStale(bg, id, tok)
			s.recorder.Record(ctx, command, entityTask, id, events.OutcomeAbandoned, err)
			return domain.Task{}, err
		}
		s.rollback(bg, id, tok)
		s.recorder.Record(ctx, command, entityTask, id, events.OutcomeRejected, err)
		return domain.Task{}, err
	}

	if task.ID == 0 {
		task.ID = id
	}
	if task.LeadName == "" {
		task.LeadName = before.Value.LeadName
	}
	if task.LeadPhone == "" {
		task.LeadPhone = before.Value.LeadPhone
	}
	if task.Status != target || domain.CheckInvariant(task) != nil {
		// The remote accepted the command, so its copy has moved on; show the
		// last confirmed value until a re-fetch says what it became.
		s.rollback(bg, id, tok)
		_ = s.store.MarkTaskStale(bg, id, tok)
		err := apperr.RemoteWrite("system of record confirmed an inconsistent call task", http.StatusOK, domain.ErrCompletionInvariant).
			WithDetails(map[string]string{"status": string(task.Status), "target": string(target)})
		s.recorder.Record(ctx, command, entityTask, id, events.OutcomeRejected, err)
		return domain.Task{}, err
	}

	if _, err := s.store.ConfirmTask(bg, tok, task); err != nil {
		return domain.Task{}, err
	}
	s.publishTask(bg, task)
	s.recorder.Record(ctx, command, entityTask, id, events.OutcomeConfirmed, nil)
	return task, nil
}

func (s *Service) rollback(ctx context.Context, id int64, tok workset.Token) {
	if restored, applied, err := s.store.RejectTask(ctx, id, tok); err == nil && applied {
		s.publishTask(ctx, restored.Value)
	}
}

func (s *Service) refresh(ctx context.Context, agentID int64) error {
	var filter *int64
	if agentID != 0 {
		filter = &agentID
	}
	tasks, err := s.remote.ListTasks(ctx, filter)
	if err != nil {
		return err
	}
	return s.store.PutTasks(ctx, tasks...)
}

func (s *Service) publishTask(ctx context.Context, task domain.Task) {
	if s.eventBus == nil {
		return
	}
	actor := s.recorder.Actor()
	s.eventBus.Publish(ctx, events.CallTaskChanged{
		BaseEvent: events.NewBaseEvent(),
		SessionID: actor.SessionID,
		AgentID:   actor.AgentID,
		Task:      task,
		Origin:    events.OriginLocal,
	})
}
