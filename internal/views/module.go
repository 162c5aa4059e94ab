package views

import (
	apphttp "agent_workbench/internal/http"
)

// Module mounts the view routes and the admin stats route.
type Module struct {
	handler *Handler
}

// NewModule creates the views module.
func NewModule() *Module {
	return &Module{handler: NewHandler()}
}

func (m *Module) Name() string {
	return "views"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/views"))
	ctx.Admin.GET("/stats", m.handler.AdminStats)
}

var _ apphttp.Module = (*Module)(nil)
