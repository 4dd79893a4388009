package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// authedRouter wires the auth middleware in front of a probe handler that
// reports the api_key context value.
func authedRouter(keys []string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(keys))
	r.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key": c.GetString("api_key")})
	})
	return r
}

func TestAuth_NoKeysConfiguredIsOpen(t *testing.T) {
	w := httptest.NewRecorder()
	authedRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuth_HeaderStyles(t *testing.T) {
	r := authedRouter([]string{"secret-key"})

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"x-api-key", "X-API-Key", "secret-key"},
		{"bearer", "Authorization", "Bearer secret-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set(tt.header, tt.value)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["key"] != "secret-key" {
				t.Errorf("api_key in context = %q", body["key"])
			}
		})
	}
}

func TestAuth_MissingKey(t *testing.T) {
	w := httptest.NewRecorder()
	authedRouter([]string{"secret-key"}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeUnauthorized {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestAuth_InvalidKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	authedRouter([]string{"secret-key"}).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}
