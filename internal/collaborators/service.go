// Package collaborators passes lead artifacts owned by downstream services
// (voice analyses, emails, prospectus documents, the product catalog) through
// to the workbench. Bodies are returned verbatim.
package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"agent_workbench/internal/leads/domain"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/scheduler"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/validator"
)

const (
	commandRequestProspectus = "request_prospectus"
	entityLead               = "lead"
)

// Conn is the remote connection of the signed-in agent.
type Conn interface {
	GetRaw(ctx context.Context, op, path string) (json.RawMessage, error)
	PostRaw(ctx context.Context, op, path string, body interface{}) (json.RawMessage, error)
}

// Leads resolves a lead in the agent's working set.
type Leads interface {
	Lookup(ctx context.Context, id int64) (domain.Lead, error)
}

// ProspectusQueue dispatches prospectus requests to the worker.
type ProspectusQueue interface {
	RequestProspectus(ctx context.Context, payload scheduler.ProspectusRequestPayload) (scheduler.Receipt, error)
}

// Caller is everything a collaborator command needs from the agent's session.
type Caller struct {
	AgentID  int64
	Conn     Conn
	Leads    Leads
	Recorder *outcome.Recorder
}

// ProspectusRequest selects the products a prospectus covers.
type ProspectusRequest struct {
	ProductIDs []int64 `json:"productIds" validate:"required,min=1,max=20,dive,gt=0"`
}

// ProspectusResult is either a queue receipt or, without a queue, the
// document service's answer.
type ProspectusResult struct {
	Queued   bool               `json:"queued"`
	Receipt  *scheduler.Receipt `json:"receipt,omitempty"`
	Document json.RawMessage    `json:"document,omitempty"`
}

type Service struct {
	queue ProspectusQueue
	val   *validator.Validator
}

// New creates the service. queue may be nil, in which case prospectus
// requests are sent inline with the agent's token.
func New(queue ProspectusQueue, val *validator.Validator) *Service {
	return &Service{queue: queue, val: val}
}

func (s *Service) VoiceSessions(ctx context.Context, conn Conn, leadID int64) (json.RawMessage, error) {
	return conn.GetRaw(ctx, "voice_sessions", fmt.Sprintf("/voice/sessions/lead/%d", leadID))
}

func (s *Service) Emails(ctx context.Context, conn Conn, leadID int64) (json.RawMessage, error) {
	return conn.GetRaw(ctx, "lead_emails", fmt.Sprintf("/emails/lead/%d", leadID))
}

func (s *Service) Prospectus(ctx context.Context, conn Conn, leadID int64) (json.RawMessage, error) {
	return conn.GetRaw(ctx, "lead_prospectus", fmt.Sprintf("/prospectus/lead/%d", leadID))
}

func (s *Service) Products(ctx context.Context, conn Conn) (json.RawMessage, error) {
	return conn.GetRaw(ctx, "products", "/products")
}

// RequestProspectus asks the document service for a prospectus on a lead the
// agent can see.
func (s *Service) RequestProspectus(ctx context.Context, caller Caller, leadID int64, req ProspectusRequest) (res ProspectusResult, err error) {
	defer func() {
		if caller.Recorder != nil {
			caller.Recorder.Record(ctx, commandRequestProspectus, entityLead, leadID, "", err)
		}
	}()

	if err := s.val.Check(req, "invalid prospectus request"); err != nil {
		return ProspectusResult{}, err
	}
	if _, err := caller.Leads.Lookup(ctx, leadID); err != nil {
		return ProspectusResult{}, err
	}

	payload := scheduler.ProspectusRequestPayload{
		LeadID:     leadID,
		AgentID:    caller.AgentID,
		ProductIDs: req.ProductIDs,
	}

	if s.queue == nil {
		doc, err := caller.Conn.PostRaw(ctx, commandRequestProspectus, "/prospectus", payload)
		if err != nil {
			return ProspectusResult{}, err
		}
		return ProspectusResult{Document: doc}, nil
	}

	receipt, err := s.queue.RequestProspectus(ctx, payload)
	if err != nil {
		return ProspectusResult{}, apperr.Wrap(apperr.KindInternal, "could not queue prospectus request", err)
	}
	return ProspectusResult{Queued: true, Receipt: &receipt}, nil
}
