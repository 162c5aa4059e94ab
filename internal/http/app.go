// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"agent_workbench/internal/events"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.RateLimitConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP, rate limit and JWT settings).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks. Optional.
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Session binds a verified token to the agent's session.
	Session gin.HandlerFunc
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
