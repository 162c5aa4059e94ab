package http

import (
	"agent_workbench/platform/config"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a slice of the workbench API: auth, leads, call tasks, views and
// the rest each mount their own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups a module mounts on.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 with no authentication.
	V1 *gin.RouterGroup
	// Protected requires a verified token bound to a live session.
	Protected *gin.RouterGroup
	// Admin is Protected restricted to the ADMIN role, under /admin.
	Admin           *gin.RouterGroup
	Config          config.JWTConfig
	AuthRateLimiter *httpkit.AuthRateLimiter
}
