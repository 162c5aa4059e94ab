package journal

import (
	"net/http"

	"agent_workbench/internal/events"
	apphttp "agent_workbench/internal/http"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	AgentID *int64 `form:"agentId"`
	Outcome string `form:"outcome"`
	Limit   int    `form:"limit"`
}

var knownOutcomes = map[string]bool{
	events.OutcomeConfirmed: true,
	events.OutcomeNoop:      true,
	events.OutcomeRejected:  true,
	events.OutcomeInvalid:   true,
	events.OutcomeAbandoned: true,
}

// Module serves the journal to administrators.
type Module struct {
	store Store
}

func NewModule(store Store) *Module {
	return &Module{store: store}
}

func (m *Module) Name() string {
	return "journal"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/journal", m.List)
}

// List returns the latest journal entries, newest first.
func (m *Module) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if q.Outcome != "" && !knownOutcomes[q.Outcome] {
		httpkit.HandleError(c, apperr.Validation("unknown outcome").WithDetails(map[string]string{"outcome": q.Outcome}))
		return
	}

	entries, err := m.store.List(c.Request.Context(), Query{AgentID: q.AgentID, Outcome: q.Outcome, Limit: q.Limit})
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "could not read journal", err))
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpkit.OK(c, entries)
}

var _ apphttp.Module = (*Module)(nil)
