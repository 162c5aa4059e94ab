// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates route registration; the
// per-agent lead state lives in tracker and is reached through the session.
package leads

import (
	"agent_workbench/internal/collaborators"
	apphttp "agent_workbench/internal/http"
	"agent_workbench/internal/leads/handler"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the leads module.
func NewModule(collab *collaborators.Service) *Module {
	return &Module{handler: handler.New(collab)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
