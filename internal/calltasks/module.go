// Package calltasks mounts the call task routes. Scheduling rules live in
// scheduler and run against the agent's session.
package calltasks

import (
	"agent_workbench/internal/calltasks/handler"
	apphttp "agent_workbench/internal/http"
)

// Module is the call tasks bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the call tasks module.
func NewModule() *Module {
	return &Module{handler: handler.New()}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "calltasks"
}

// RegisterRoutes mounts task routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/tasks"))
}

var _ apphttp.Module = (*Module)(nil)
