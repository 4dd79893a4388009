package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports session pool utilisation and degrades status when > 80% of the
// pool is in use.
func Health(sessions Sessions, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessions.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Version:  "0.1.0",
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Sessions: stats,
		})
	}
}
