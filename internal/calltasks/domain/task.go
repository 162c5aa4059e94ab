// Package domain provides the call task model and its state machine.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a call task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
)

// IsKnown reports whether s is a task status.
func (s Status) IsKnown() bool {
	switch s {
	case StatusPending, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Task is a scheduled outbound call to a lead.
type Task struct {
	ID            int64      `json:"id"`
	LeadID        int64      `json:"leadId"`
	AgentID       int64      `json:"agentId"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	Status        Status     `json:"status"`
	Notes         *string    `json:"notes,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	LeadName      string     `json:"leadName,omitempty"`
	LeadPhone     string     `json:"leadPhone,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.Notes != nil {
		notes := *t.Notes
		t.Notes = &notes
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}

// ErrCompletionInvariant is returned when completedAt is set without DONE or vice versa.
var ErrCompletionInvariant = errors.New("completedAt must be set exactly when status is DONE")

// CheckInvariant verifies completedAt is present if and only if the task is DONE.
func CheckInvariant(t Task) error {
	if !t.Status.IsKnown() {
		return fmt.Errorf("unknown task status %q", t.Status)
	}
	if (t.Status == StatusDone) != (t.CompletedAt != nil) {
		return ErrCompletionInvariant
	}
	return nil
}

// CanResolve reports whether t may be completed or cancelled.
func CanResolve(t Task) bool {
	return t.Status == StatusPending
}

// Complete returns the DONE form of a pending task. completedAt comes from the
// system of record's confirmation, never from the local clock.
func Complete(t Task, completedAt time.Time, notes *string) (Task, error) {
	if !CanResolve(t) {
		return t, fmt.Errorf("task %d is %s", t.ID, t.Status)
	}
	out := t.Clone()
	out.Status = StatusDone
	at := completedAt
	out.CompletedAt = &at
	if notes != nil {
		n := *notes
		out.Notes = &n
	}
	return out, nil
}

// Cancel returns the CANCELLED form of a pending task.
func Cancel(t Task) (Task, error) {
	if !CanResolve(t) {
		return t, fmt.Errorf("task %d is %s", t.ID, t.Status)
	}
	out := t.Clone()
	out.Status = StatusCancelled
	out.CompletedAt = nil
	return out, nil
}

// Filter narrows a task listing.
type Filter struct {
	AgentID *int64
	From    *time.Time
	To      *time.Time
}

// InRange keeps tasks scheduled in [from, to). Nil bounds are open.
func InRange(tasks []Task, from, to *time.Time) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if from != nil && t.ScheduledTime.Before(*from) {
			continue
		}
		if to != nil && !t.ScheduledTime.Before(*to) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// DayBounds returns the start of day and the start of the next day for ref in loc.
func DayBounds(ref time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// OnDay keeps tasks scheduled on ref's calendar day in loc.
func OnDay(tasks []Task, ref time.Time, loc *time.Location) []Task {
	start, end := DayBounds(ref, loc)
	return InRange(tasks, &start, &end)
}

// SortBySchedule orders tasks by scheduled time, then id.
func SortBySchedule(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].ScheduledTime.Equal(tasks[j].ScheduledTime) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].ScheduledTime.Before(tasks[j].ScheduledTime)
	})
}

// ScheduleInput carries a request to schedule a call.
type ScheduleInput struct {
	LeadID        int64   `json:"leadId" validate:"required,gt=0"`
	AgentID       int64   `json:"agentId,omitempty" validate:"gte=0"`
	ScheduledTime string  `json:"scheduledTime" validate:"required"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// localLayouts are accepted when the timestamp carries no zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseScheduledTime accepts RFC 3339 or a zone-less local timestamp
// interpreted in loc. Past timestamps are accepted.
func ParseScheduledTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("scheduledTime is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("scheduledTime %q is not a valid timestamp", raw)
}
