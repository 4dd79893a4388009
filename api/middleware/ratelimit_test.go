package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/config"
)

// limitedRouter wires an identity-stamping middleware, the rate limiter,
// and a trivial handler. The identity comes from the X-Test-Identity
// header, standing in for what the auth middleware would set.
func limitedRouter(cfg config.RateLimitConfig) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if key := c.GetHeader("X-Test-Identity"); key != "" {
			c.Set("api_key", key)
		}
		c.Next()
	})
	r.Use(RateLimit(cfg))
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, identity string) int {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if identity != "" {
		req.Header.Set("X-Test-Identity", identity)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstThenRejects(t *testing.T) {
	r := limitedRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	if code := hit(r, "key-a"); code != http.StatusOK {
		t.Fatalf("request 1 = %d", code)
	}
	if code := hit(r, "key-a"); code != http.StatusOK {
		t.Fatalf("request 2 = %d", code)
	}
	if code := hit(r, "key-a"); code != http.StatusTooManyRequests {
		t.Fatalf("request 3 = %d, want 429", code)
	}
}

func TestRateLimit_IdentitiesAreIndependent(t *testing.T) {
	r := limitedRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	if code := hit(r, "key-a"); code != http.StatusOK {
		t.Fatalf("key-a request 1 = %d", code)
	}
	if code := hit(r, "key-a"); code != http.StatusTooManyRequests {
		t.Fatalf("key-a request 2 = %d, want 429", code)
	}

	// A different identity gets its own bucket.
	if code := hit(r, "key-b"); code != http.StatusOK {
		t.Fatalf("key-b request 1 = %d", code)
	}
}

func TestRateLimit_FallsBackToClientIP(t *testing.T) {
	// No api_key in context: the client IP is the identity.
	r := limitedRouter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	if code := hit(r, ""); code != http.StatusOK {
		t.Fatalf("request 1 = %d", code)
	}
	if code := hit(r, ""); code != http.StatusTooManyRequests {
		t.Fatalf("request 2 = %d, want 429", code)
	}
}
