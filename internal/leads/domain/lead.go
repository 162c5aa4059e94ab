package domain

import (
	"strings"
	"time"

	"agent_workbench/platform/sanitize"
)

// Lead is a prospective customer owned by one agent.
type Lead struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Status     Status    `json:"status"`
	LeadSource string    `json:"leadSource"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	AgentID    int64     `json:"agentId,omitempty"`
}

// Clone returns a deep copy of l.
func (l Lead) Clone() Lead {
	if l.Notes != nil {
		notes := *l.Notes
		l.Notes = &notes
	}
	return l
}

// CreateInput carries the fields an agent supplies for a new lead.
// Status is not settable: every new lead starts as NEW.
type CreateInput struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Email      string  `json:"email" validate:"required,email,max=254"`
	Phone      string  `json:"phone" validate:"required,min=5,max=32"`
	LeadSource string  `json:"leadSource" validate:"required,max=100"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// Normalize trims every field and strips markup from the free-text ones.
func (in CreateInput) Normalize() CreateInput {
	in.Name = sanitize.Line(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.LeadSource = sanitize.Line(in.LeadSource)
	in.Notes = sanitize.TextPtr(in.Notes)
	return in
}

// Patch is a partial update of a lead's editable fields.
// Nil fields are left untouched. Status is changed through ChangeStatus only.
type Patch struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,min=5,max=32"`
	LeadSource *string `json:"leadSource,omitempty" validate:"omitempty,min=1,max=100"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.LeadSource == nil && p.Notes == nil
}

// Normalize is CreateInput.Normalize for the set fields.
func (p Patch) Normalize() Patch {
	p.Name = linePtr(p.Name)
	p.Email = trimPtr(p.Email)
	p.Phone = trimPtr(p.Phone)
	p.LeadSource = linePtr(p.LeadSource)
	p.Notes = sanitize.TextPtr(p.Notes)
	return p
}

// Apply returns l with the patch's set fields applied.
func (p Patch) Apply(l Lead) Lead {
	out := l.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	if p.LeadSource != nil {
		out.LeadSource = *p.LeadSource
	}
	if p.Notes != nil {
		notes := *p.Notes
		out.Notes = &notes
	}
	return out
}

// Filter selects a page of leads from the system of record.
type Filter struct {
	Status   *Status
	Search   string
	Page     int
	PageSize int
	Mine     bool
}

// Page is one page of leads as reported by the system of record.
type Page struct {
	Items      []Lead `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalItems int64  `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

func linePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitize.Line(*s)
	return &v
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
