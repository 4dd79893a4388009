// Package api assembles the HTTP surface: routes, middleware, and the
// handler wiring.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/api/handler"
	"github.com/use-agent/webpilot/api/middleware"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(d handler.Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health stays reachable without credentials.
	v1.GET("/health", handler.Health(d.Sessions, d.Start))

	// Everything else goes through auth and rate limiting.
	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(d.Config.RateLimit))

	// Sessions
	protected.POST("/sessions", handler.PostSession(d.Sessions))
	protected.GET("/sessions", handler.GetSessions(d.Sessions))
	protected.GET("/sessions/:id", handler.GetSession(d.Sessions))
	protected.DELETE("/sessions/:id", handler.DeleteSession(d.Sessions))
	protected.POST("/sessions/:id/navigate", handler.PostNavigate(d.Sessions))

	// Run (synchronous single instruction)
	protected.POST("/run", handler.Run(d))

	// Objectives (asynchronous agent runs)
	protected.POST("/objectives", handler.PostObjective(d))
	protected.GET("/objectives/:id", handler.GetObjective())

	// Extract (read-only question answering)
	protected.POST("/extract", handler.Extract(d))

	return r
}
