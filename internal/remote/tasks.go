package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
)

// ListTasks fetches call tasks, optionally for one agent.
func (cn *Conn) ListTasks(ctx context.Context, agentID *int64) ([]calldomain.Task, error) {
	q := url.Values{}
	if agentID != nil {
		q.Set("agentId", strconv.FormatInt(*agentID, 10))
	}
	return cn.tasks(ctx, call{op: "list_tasks", method: http.MethodGet, path: "/tasks", query: q})
}

// ListTodayTasks fetches the remote's view of today's tasks.
func (cn *Conn) ListTodayTasks(ctx context.Context) ([]calldomain.Task, error) {
	return cn.tasks(ctx, call{op: "list_today_tasks", method: http.MethodGet, path: "/tasks/today"})
}

func (cn *Conn) tasks(ctx context.Context, req call) ([]calldomain.Task, error) {
	var ws []wireTask
	if err := cn.do(ctx, req, &ws); err != nil {
		return nil, err
	}
	out := make([]calldomain.Task, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toDomain(cn.client.location))
	}
	return out, nil
}

// CreateTask schedules a call.
func (cn *Conn) CreateTask(ctx context.Context, leadID, agentID int64, at time.Time, notes *string) (calldomain.Task, error) {
	body := createTaskRequest{
		LeadID:        leadID,
		AgentID:       agentID,
		ScheduledTime: at.Format(time.RFC3339),
		Notes:         notes,
	}
	return cn.task(ctx, call{op: "create_task", method: http.MethodPost, path: "/tasks", body: body})
}

// CompleteTask marks a task DONE.
func (cn *Conn) CompleteTask(ctx context.Context, id int64, notes *string) (calldomain.Task, error) {
	return cn.task(ctx, call{
		op:     "complete_task",
		method: http.MethodPost,
		path:   "/tasks/" + strconv.FormatInt(id, 10) + "/complete",
		body:   completeTaskRequest{Notes: notes},
	})
}

// CancelTask marks a task CANCELLED.
func (cn *Conn) CancelTask(ctx context.Context, id int64) (calldomain.Task, error) {
	return cn.task(ctx, call{
		op:     "cancel_task",
		method: http.MethodPost,
		path:   "/tasks/" + strconv.FormatInt(id, 10) + "/cancel",
	})
}

func (cn *Conn) task(ctx context.Context, req call) (calldomain.Task, error) {
	var w wireTask
	if err := cn.do(ctx, req, &w); err != nil {
		return calldomain.Task{}, err
	}
	return w.toDomain(cn.client.location), nil
}
