package views

import (
	"context"
	"time"

	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/internal/session"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// loadPageSize is the largest page the system of record serves.
const loadPageSize = 100

// Handler serves the read-only views over the agent's working set.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a Handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.Dashboard)
	rg.GET("/kanban", h.Kanban)
	rg.GET("/calendar", h.Calendar)
}

func (h *Handler) Dashboard(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	snap, err := refresh(c.Request.Context(), sess, true)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, BuildDashboard(snap, sess.AgentID, h.now(), sess.Location))
}

func (h *Handler) Kanban(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	ctx := c.Request.Context()
	mine := c.Query("mine") == "true"
	if _, err := sess.Leads.LoadLeads(ctx, leaddomain.Filter{PageSize: loadPageSize, Mine: mine}); httpkit.HandleError(c, err) {
		return
	}
	snap, err := sess.Snapshot(ctx)
	if httpkit.HandleError(c, err) {
		return
	}
	leads := snap.Leads
	if mine {
		leads = leadsOf(leads, sess.AgentID)
	}
	httpkit.OK(c, Kanban(leads))
}

func (h *Handler) Calendar(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	tasks, err := sess.Calls.ListTasks(c.Request.Context(), calldomain.Filter{})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, BuildCalendar(tasks))
}

func (h *Handler) AdminStats(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	snap, err := refresh(c.Request.Context(), sess, false)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, BuildAdminStats(snap, h.now(), sess.Location))
}

// refresh loads leads and tasks into the working set in parallel and returns
// the resulting snapshot. Nothing is merged from a load that failed.
func refresh(ctx context.Context, sess *session.Session, mine bool) (workset.Snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := sess.Leads.LoadLeads(gctx, leaddomain.Filter{PageSize: loadPageSize, Mine: mine})
		return err
	})
	g.Go(func() error {
		_, err := sess.Calls.ListTasks(gctx, calldomain.Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return workset.Snapshot{}, err
	}
	return sess.Snapshot(ctx)
}
