package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"agent_workbench/internal/calltasks/domain"
	"agent_workbench/internal/calltasks/transport"
	"agent_workbench/internal/session"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct{}

const (
	msgInvalidRequest = "invalid request"
	msgInvalidTaskID  = "invalid task id"
)

func New() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/today", h.ListToday)
	rg.POST("", h.Schedule)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
}

func (h *Handler) List(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	var q transport.ListTasksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	filter := domain.Filter{AgentID: q.AgentID}
	var err error
	if filter.From, err = parseBound("from", q.From); httpkit.HandleError(c, err) {
		return
	}
	if filter.To, err = parseBound("to", q.To); httpkit.HandleError(c, err) {
		return
	}

	tasks, err := sess.Calls.ListTasks(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tasks)
}

func (h *Handler) ListToday(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	tasks, err := sess.Calls.ListToday(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, tasks)
}

func (h *Handler) Schedule(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	var req domain.ScheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	task, err := sess.Calls.ScheduleCall(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, task)
}

func (h *Handler) Complete(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	// The body is optional; an empty one, chunked or not, decodes to io.EOF.
	var req transport.CompleteTaskRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	task, err := sess.Calls.CompleteCall(c.Request.Context(), id, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func (h *Handler) Cancel(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	task, err := sess.Calls.CancelCall(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func target(c *gin.Context) (*session.Session, int64, bool) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return nil, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidTaskID, nil)
		return nil, 0, false
	}
	return sess, id, true
}

func parseBound(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("invalid "+name+" time").WithDetails(map[string]string{name: raw})
	}
	return &t, nil
}
