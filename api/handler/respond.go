package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

// toAgentError normalizes any error to an *models.AgentError so it carries
// a code the status mapping understands.
func toAgentError(err error) *models.AgentError {
	var agentErr *models.AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewAgentError(models.ErrCodeTimeout, "request deadline exceeded", err)
	}
	return models.NewAgentError(models.ErrCodeInternal, err.Error(), err)
}

// respondError writes the generic error envelope with the HTTP status
// matching the error code.
func respondError(c *gin.Context, err error) {
	agentErr := toAgentError(err)
	c.JSON(mapErrorToStatus(agentErr), models.ErrorResponse{
		Success: false,
		Error:   agentErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.AgentError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeUnknownControl, models.ErrCodeUnknownEngine:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized, models.ErrCodeLLMAuthFailure:
		return http.StatusUnauthorized // 401
	case models.ErrCodeSessionNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation, models.ErrCodeBrowserCrash, models.ErrCodeActionFailed,
		models.ErrCodeLLMFailure, models.ErrCodeExtraction:
		return http.StatusBadGateway // 502
	case models.ErrCodeSessionLimit:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

// errSessionNotFound is the standard miss for a session ID lookup.
func errSessionNotFound(id string) *models.AgentError {
	return models.NewAgentError(
		models.ErrCodeSessionNotFound,
		fmt.Sprintf("session %q not found", id),
		nil,
	)
}
