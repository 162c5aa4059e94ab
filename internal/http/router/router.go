package router

import (
	"context"
	"net/http"
	"time"

	apphttp "agent_workbench/internal/http"
	"agent_workbench/internal/session"
	"agent_workbench/platform/httpkit"
	"agent_workbench/platform/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// New builds the gin engine and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))
	engine.Use(metrics.Middleware())

	engine.GET("/api/health", health(app.Health))
	engine.GET("/metrics", metrics.Handler())

	apiLimiter := httpkit.NewConfiguredRateLimiter(app.Config, app.Logger)
	v1 := engine.Group("/api/v1")
	v1.Use(apiLimiter.RateLimit())

	sessionMiddleware := app.Session
	if sessionMiddleware == nil {
		sessionMiddleware = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpkit.ErrorResponse{Error: "sessions unavailable", Code: "UNAVAILABLE"})
		}
	}
	protected := v1.Group("")
	protected.Use(httpkit.AuthRequired(app.Config), sessionMiddleware)

	admin := protected.Group("/admin")
	admin.Use(httpkit.RequireRole(session.RoleAdmin))

	rctx := &apphttp.RouterContext{
		Engine:          engine,
		V1:              v1,
		Protected:       protected,
		Admin:           admin,
		Config:          app.Config,
		AuthRateLimiter: httpkit.NewAuthRateLimiter(app.Logger),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rctx)
		app.Logger.Debug("module registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.RequestIDHeader},
		ExposeHeaders:    []string{httpkit.RequestIDHeader},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cfg.GetCORSOrigins()
	}
	return conf
}

func health(checker apphttp.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
