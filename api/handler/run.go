package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

// Run returns a handler for POST /api/v1/run.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Resolve the session and build its engine set.
//  3. Execute the instruction on the named engine   (records engine_ms)
//  4. Fill timing + the instruction log, respond.
func Run(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RunResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		// ── 2. Resolve session + engines ────────────────────────────
		sess, ok := d.Sessions.Get(req.SessionID)
		if !ok {
			respondError(c, errSessionNotFound(req.SessionID))
			return
		}

		set := d.Engines(sess)
		set.Navigation.SetRaiseOnError(*req.RaiseOnError)

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.Timeout)*time.Second)
		defer cancel()

		// ── 3. Execute ──────────────────────────────────────────────
		engineStart := time.Now()
		result, navLog, err := set.Dispatcher.ExecuteLogged(ctx, req.Engine, req.Instruction)
		engineMs := time.Since(engineStart).Milliseconds()

		// ── 4. Respond ──────────────────────────────────────────────
		resp := models.RunResponse{
			Success: err == nil,
			Result:  result,
			Timing: &models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				EngineMs: engineMs,
			},
		}
		if *req.IncludeLog {
			resp.Log = navLog
		}

		if err != nil {
			agentErr := toAgentError(err)
			resp.Error = agentErr.ToDetail()
			c.JSON(mapErrorToStatus(agentErr), resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
