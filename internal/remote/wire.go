package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
)

// timestampLayouts are tried in order. The zone-less forms are what a
// LocalDateTime serialiser emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Timestamp decodes RFC 3339 or zone-less timestamps. Zone-less values are
// held as wall-clock fields and resolved against a location later.
type Timestamp struct {
	time.Time
	zoned bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	for i, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = Timestamp{Time: parsed, zoned: i == 0}
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised value %q", raw)
}

// In resolves the timestamp, interpreting zone-less values in loc.
func (t Timestamp) In(loc *time.Location) time.Time {
	if t.IsZero() || t.zoned {
		return t.Time
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// Ptr is In for optional timestamps.
func (t *Timestamp) Ptr(loc *time.Location) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.In(loc)
	return &v
}

type wireLead struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Status     string    `json:"status"`
	LeadSource string    `json:"leadSource"`
	Notes      *string   `json:"notes"`
	CreatedAt  Timestamp `json:"createdAt"`
	AgentID    int64     `json:"agentId"`
}

func (w wireLead) toDomain(loc *time.Location) leaddomain.Lead {
	return leaddomain.Lead{
		ID:         w.ID,
		Name:       w.Name,
		Email:      w.Email,
		Phone:      w.Phone,
		Status:     leaddomain.Status(w.Status),
		LeadSource: w.LeadSource,
		Notes:      w.Notes,
		CreatedAt:  w.CreatedAt.In(loc),
		AgentID:    w.AgentID,
	}
}

type wireTask struct {
	ID            int64      `json:"id"`
	LeadID        int64      `json:"leadId"`
	AgentID       int64      `json:"agentId"`
	ScheduledTime Timestamp  `json:"scheduledTime"`
	Status        string     `json:"status"`
	Notes         *string    `json:"notes"`
	CompletedAt   *Timestamp `json:"completedAt"`
	LeadName      string     `json:"leadName"`
	LeadPhone     string     `json:"leadPhone"`
}

func (w wireTask) toDomain(loc *time.Location) calldomain.Task {
	return calldomain.Task{
		ID:            w.ID,
		LeadID:        w.LeadID,
		AgentID:       w.AgentID,
		ScheduledTime: w.ScheduledTime.In(loc),
		Status:        calldomain.Status(w.Status),
		Notes:         w.Notes,
		CompletedAt:   w.CompletedAt.Ptr(loc),
		LeadName:      w.LeadName,
		LeadPhone:     w.LeadPhone,
	}
}

// wirePage is a paged listing as the system of record returns it.
type wirePage struct {
	Content       []wireLead `json:"content"`
	TotalElements int64      `json:"totalElements"`
	TotalPages    int        `json:"totalPages"`
	Number        int        `json:"number"`
	Size          int        `json:"size"`
}

type createLeadRequest struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Status     string  `json:"status"`
	LeadSource string  `json:"leadSource"`
	Notes      *string `json:"notes,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type createTaskRequest struct {
	LeadID        int64   `json:"leadId"`
	AgentID       int64   `json:"agentId,omitempty"`
	ScheduledTime string  `json:"scheduledTime"`
	Notes         *string `json:"notes,omitempty"`
}

type completeTaskRequest struct {
	Notes *string `json:"notes,omitempty"`
}
