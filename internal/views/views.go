// Package views computes the read-only summaries shown on the workbench
// screens. Every function here is pure: it takes a working-set snapshot and
// returns a fresh value, so it can be re-run after each mutation.
package views

import (
	"math"
	"sort"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/internal/workset"
)

const recentLeadsLimit = 5

// StatusCount is the number of leads in one funnel status.
type StatusCount struct {
	Status leaddomain.Status `json:"status"`
	Title  string            `json:"title"`
	Count  int               `json:"count"`
}

// StatusCounts counts leads per status, in funnel order. Every status is
// present, including empty ones.
func StatusCounts(leads []leaddomain.Lead) []StatusCount {
	counts := make(map[leaddomain.Status]int, len(leaddomain.Statuses))
	for _, l := range leads {
		counts[l.Status]++
	}
	out := make([]StatusCount, 0, len(leaddomain.Statuses))
	for _, s := range leaddomain.Statuses {
		out = append(out, StatusCount{Status: s, Title: s.Title(), Count: counts[s]})
	}
	return out
}

// KanbanColumn is one board column.
type KanbanColumn struct {
	Status leaddomain.Status `json:"status"`
	Title  string            `json:"title"`
	Leads  []leaddomain.Lead `json:"leads"`
}

// Kanban groups leads into six columns in funnel order. Leads keep their
// input order inside a column.
func Kanban(leads []leaddomain.Lead) []KanbanColumn {
	cols := make([]KanbanColumn, len(leaddomain.Statuses))
	for i, s := range leaddomain.Statuses {
		cols[i] = KanbanColumn{Status: s, Title: s.Title(), Leads: []leaddomain.Lead{}}
	}
	for _, l := range leads {
		if pos := l.Status.Position(); pos >= 0 {
			cols[pos].Leads = append(cols[pos].Leads, l)
		}
	}
	return cols
}

// Dashboard is an agent's landing summary.
type Dashboard struct {
	CallsToday     int               `json:"callsToday"`
	PendingToday   []calldomain.Task `json:"pendingToday"`
	CompletedToday []calldomain.Task `json:"completedToday"`
	MyLeads        int               `json:"myLeads"`
	NewLeads       int               `json:"newLeads"`
	RecentLeads    []leaddomain.Lead `json:"recentLeads"`
	StatusCounts   []StatusCount     `json:"statusCounts"`
	GeneratedAt    time.Time         `json:"generatedAt"`
}

// BuildDashboard summarises the agent's day. Calls are counted on now's calendar
// day in loc; pending calls are ordered by scheduled time.
func BuildDashboard(snap workset.Snapshot, agentID int64, now time.Time, loc *time.Location) Dashboard {
	mine := leadsOf(snap.Leads, agentID)
	today := calldomain.OnDay(tasksOf(snap.Tasks, agentID), now, loc)

	d := Dashboard{
		CallsToday:     len(today),
		PendingToday:   []calldomain.Task{},
		CompletedToday: []calldomain.Task{},
		MyLeads:        len(mine),
		StatusCounts:   StatusCounts(mine),
		GeneratedAt:    now,
	}
	for _, t := range today {
		switch t.Status {
		case calldomain.StatusPending:
			d.PendingToday = append(d.PendingToday, t)
		case calldomain.StatusDone:
			d.CompletedToday = append(d.CompletedToday, t)
		}
	}
	calldomain.SortBySchedule(d.PendingToday)
	calldomain.SortBySchedule(d.CompletedToday)

	for _, l := range mine {
		if l.Status == leaddomain.StatusNew {
			d.NewLeads++
		}
	}
	d.RecentLeads = recent(mine, recentLeadsLimit)
	return d
}

// Calendar splits tasks by status, each group ordered by scheduled time.
type Calendar struct {
	Pending   []calldomain.Task `json:"pending"`
	Done      []calldomain.Task `json:"done"`
	Cancelled []calldomain.Task `json:"cancelled"`
}

// BuildCalendar groups tasks for the calendar screen.
func BuildCalendar(tasks []calldomain.Task) Calendar {
	c := Calendar{
		Pending:   []calldomain.Task{},
		Done:      []calldomain.Task{},
		Cancelled: []calldomain.Task{},
	}
	for _, t := range tasks {
		switch t.Status {
		case calldomain.StatusPending:
			c.Pending = append(c.Pending, t)
		case calldomain.StatusDone:
			c.Done = append(c.Done, t)
		case calldomain.StatusCancelled:
			c.Cancelled = append(c.Cancelled, t)
		}
	}
	calldomain.SortBySchedule(c.Pending)
	calldomain.SortBySchedule(c.Done)
	calldomain.SortBySchedule(c.Cancelled)
	return c
}

// LeadHistory returns one lead's tasks, newest scheduled first.
func LeadHistory(tasks []calldomain.Task, leadID int64) []calldomain.Task {
	out := []calldomain.Task{}
	for _, t := range tasks {
		if t.LeadID == leadID {
			out = append(out, t)
		}
	}
	calldomain.SortBySchedule(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// AdminStats is the organisation-wide summary.
type AdminStats struct {
	TotalLeads     int           `json:"totalLeads"`
	NewLeads       int           `json:"newLeads"`
	CallsToday     int           `json:"callsToday"`
	ConversionRate float64       `json:"conversionRate"`
	StatusCounts   []StatusCount `json:"statusCounts"`
}

// BuildAdminStats computes totals over every lead and task in the snapshot.
// The conversion rate is a percentage rounded to one decimal, 0 with no leads.
func BuildAdminStats(snap workset.Snapshot, now time.Time, loc *time.Location) AdminStats {
	s := AdminStats{
		TotalLeads:   len(snap.Leads),
		CallsToday:   len(calldomain.OnDay(snap.Tasks, now, loc)),
		StatusCounts: StatusCounts(snap.Leads),
	}
	converted := 0
	for _, l := range snap.Leads {
		switch l.Status {
		case leaddomain.StatusNew:
			s.NewLeads++
		case leaddomain.StatusConverted:
			converted++
		}
	}
	s.ConversionRate = ConversionRate(converted, s.TotalLeads)
	return s
}

// ConversionRate is converted/total as a percentage with one decimal.
func ConversionRate(converted, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(converted)/float64(total)*1000) / 10
}

func leadsOf(leads []leaddomain.Lead, agentID int64) []leaddomain.Lead {
	if agentID == 0 {
		return leads
	}
	out := make([]leaddomain.Lead, 0, len(leads))
	for _, l := range leads {
		if l.AgentID == 0 || l.AgentID == agentID {
			out = append(out, l)
		}
	}
	return out
}

func tasksOf(tasks []calldomain.Task, agentID int64) []calldomain.Task {
	if agentID == 0 {
		return tasks
	}
	out := make([]calldomain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.AgentID == 0 || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out
}

// recent returns up to n leads, newest created first.
func recent(leads []leaddomain.Lead, n int) []leaddomain.Lead {
	out := make([]leaddomain.Lead, len(leads))
	copy(out, leads)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
