// Package auth mounts sign-in, sign-out and profile routes. Credentials are
// checked by the auth collaborator; the workbench only opens and closes
// sessions around the token it returns.
package auth

import (
	"agent_workbench/internal/auth/handler"
	apphttp "agent_workbench/internal/http"
	"agent_workbench/internal/session"
)

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the auth module.
func NewModule(sessions *session.Manager) *Module {
	return &Module{handler: handler.New(sessions)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public auth routes with stricter rate limiting
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterRoutes(authGroup)

	ctx.Protected.POST("/auth/logout", m.handler.SignOut)
	ctx.Protected.GET("/auth/me", m.handler.GetMe)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
