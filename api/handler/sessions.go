package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

// PostSession returns a handler for POST /api/v1/sessions.
//
// Opens a new browser session, optionally navigating to a start URL. An
// empty request body is valid: every field has a default.
func PostSession(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, models.SessionResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		sess, err := sessions.Create(c.Request.Context(), req.URL, req.Stealth)
		if err != nil {
			respondError(c, err)
			return
		}

		info := sess.Info(c.Request.Context())
		c.JSON(http.StatusCreated, models.SessionResponse{
			Success: true,
			Session: &info,
		})
	}
}

// GetSessions returns a handler for GET /api/v1/sessions.
func GetSessions(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SessionListResponse{
			Success:  true,
			Sessions: sessions.List(c.Request.Context()),
		})
	}
}

// GetSession returns a handler for GET /api/v1/sessions/:id.
func GetSession(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			respondError(c, errSessionNotFound(c.Param("id")))
			return
		}

		info := sess.Info(c.Request.Context())
		c.JSON(http.StatusOK, models.SessionResponse{
			Success: true,
			Session: &info,
		})
	}
}

// DeleteSession returns a handler for DELETE /api/v1/sessions/:id.
func DeleteSession(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sessions.Close(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// PostNavigate returns a handler for POST /api/v1/sessions/:id/navigate.
//
// Loads a URL in the session's focused tab and returns the refreshed
// session descriptor.
func PostNavigate(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NavigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.SessionResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		sess, ok := sessions.Get(c.Param("id"))
		if !ok {
			respondError(c, errSessionNotFound(c.Param("id")))
			return
		}

		if err := sess.Navigate(c.Request.Context(), req.URL); err != nil {
			respondError(c, err)
			return
		}

		info := sess.Info(c.Request.Context())
		c.JSON(http.StatusOK, models.SessionResponse{
			Success: true,
			Session: &info,
		})
	}
}
