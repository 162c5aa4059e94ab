// Package catalog exposes the insurance product catalog. Products are owned by
// the catalog collaborator and read through the agent's session.
package catalog

import (
	"agent_workbench/internal/catalog/handler"
	"agent_workbench/internal/collaborators"
	apphttp "agent_workbench/internal/http"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the catalog module.
func NewModule(collab *collaborators.Service) *Module {
	return &Module{handler: handler.New(collab)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "catalog"
}

// RegisterRoutes mounts catalog routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/products"))
}

var _ apphttp.Module = (*Module)(nil)
