package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"agent_workbench/internal/calltasks/domain"
	"agent_workbench/internal/collaborators"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/internal/leads/transport"
	"agent_workbench/internal/session"
	"agent_workbench/internal/views"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	collab *collaborators.Service
}

const (
	msgInvalidRequest = "invalid request"
	msgInvalidLeadID  = "invalid lead id"
)

func New(collab *collaborators.Service) *Handler {
	return &Handler{collab: collab}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/my", h.ListMine)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id", h.Update)
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.GET("/:id/tasks", h.ListTasks)
	rg.GET("/:id/voice-sessions", h.VoiceSessions)
	rg.GET("/:id/emails", h.Emails)
	rg.GET("/:id/prospectus", h.Prospectus)
	rg.POST("/:id/prospectus", h.RequestProspectus)
}

func (h *Handler) List(c *gin.Context) {
	h.list(c, false)
}

func (h *Handler) ListMine(c *gin.Context) {
	h.list(c, true)
}

func (h *Handler) list(c *gin.Context, mine bool) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	var q transport.ListLeadsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	filter, ok := q.Filter(mine)
	if !ok {
		httpkit.HandleError(c, apperr.Validation("unknown lead status").WithDetails(map[string]string{"status": q.Status}))
		return
	}

	page, err := sess.Leads.LoadLeads(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, page)
}

func (h *Handler) Create(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	var req leaddomain.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := sess.Leads.CreateLead(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, lead)
}

func (h *Handler) GetByID(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	lead, err := sess.Leads.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.LeadResponse{Lead: lead}
	if entry, err := sess.Leads.Entry(c.Request.Context(), id); err == nil {
		resp.SyncState = string(entry.State)
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Update(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	var req leaddomain.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := sess.Leads.UpdateLeadFields(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	var req transport.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := sess.Leads.ChangeStatus(c.Request.Context(), id, leaddomain.Status(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// ListTasks returns the lead's call history, newest first.
func (h *Handler) ListTasks(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	tasks, err := sess.Calls.ListTasks(c.Request.Context(), domain.Filter{})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, views.LeadHistory(tasks, id))
}

func (h *Handler) VoiceSessions(c *gin.Context) {
	h.passThrough(c, h.collab.VoiceSessions)
}

func (h *Handler) Emails(c *gin.Context) {
	h.passThrough(c, h.collab.Emails)
}

func (h *Handler) Prospectus(c *gin.Context) {
	h.passThrough(c, h.collab.Prospectus)
}

func (h *Handler) RequestProspectus(c *gin.Context) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	var req collaborators.ProspectusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	res, err := h.collab.RequestProspectus(c.Request.Context(), collaborators.Caller{
		AgentID:  sess.AgentID,
		Conn:     sess.Conn,
		Leads:    sess.Leads,
		Recorder: sess.Outcomes,
	}, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	if res.Queued {
		httpkit.JSON(c, http.StatusAccepted, res)
		return
	}
	httpkit.Created(c, res)
}

func (h *Handler) passThrough(c *gin.Context, fetch func(ctx context.Context, conn collaborators.Conn, leadID int64) (json.RawMessage, error)) {
	sess, id, ok := target(c)
	if !ok {
		return
	}

	raw, err := fetch(c.Request.Context(), sess.Conn, id)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// target resolves the request's session and lead id, answering the request
// when either is missing.
func target(c *gin.Context) (*session.Session, int64, bool) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return nil, 0, false
	}
	id, ok := leadID(c)
	return sess, id, ok
}

func leadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return 0, false
	}
	return id, true
}
