package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

// Extract returns a handler for POST /api/v1/extract.
//
// Flow:
//  1. Parse & validate ExtractRequest; exactly one of session_id and url.
//  2. Session path: answer over a full-page snapshot of the live session.
//     URL path:     fetch statically, escalate to a transient browser page
//     when the body looks like a JS shell, then answer over the result.
//  3. Assemble response with timing.
func Extract(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		if (req.SessionID == "") == (req.URL == "") {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "exactly one of session_id and url is required",
				},
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.Timeout)*time.Second)
		defer cancel()

		// ── 2. Load + answer ────────────────────────────────────────
		var (
			answer  string
			sources []string
			err     error
		)
		engineStart := time.Now()
		if req.SessionID != "" {
			sess, ok := d.Sessions.Get(req.SessionID)
			if !ok {
				respondExtractError(c, errSessionNotFound(req.SessionID), &models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				})
				return
			}
			answer, sources, err = d.Engines(sess).Extraction.AnswerPage(ctx, req.Instruction)
		} else {
			var html string
			html, _, err = d.Loader.HTML(ctx, req.URL)
			if err == nil {
				engineStart = time.Now()
				answer, sources, err = d.Answer(ctx, req.Instruction, html, req.URL)
			}
		}

		// ── 3. Assemble response ────────────────────────────────────
		timing := &models.TimingInfo{
			TotalMs:  time.Since(totalStart).Milliseconds(),
			EngineMs: time.Since(engineStart).Milliseconds(),
		}
		if err != nil {
			respondExtractError(c, err, timing)
			return
		}

		c.JSON(http.StatusOK, models.ExtractResponse{
			Success: true,
			Output:  answer,
			Sources: sources,
			Timing:  timing,
		})
	}
}

// respondExtractError writes a structured error response carrying the
// timing collected so far.
func respondExtractError(c *gin.Context, err error, timing *models.TimingInfo) {
	agentErr := toAgentError(err)
	c.JSON(mapErrorToStatus(agentErr), models.ExtractResponse{
		Success: false,
		Error:   agentErr.ToDetail(),
		Timing:  timing,
	})
}
