package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/use-agent/webpilot/models"
)

func TestHealth_Healthy(t *testing.T) {
	pool := newFakePool(newFakeSession("s1"))
	r := testRouter(testDeps(pool, &scriptedLLM{}))

	w := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.HealthResponse
	decodeInto(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Version == "" {
		t.Error("version missing")
	}
	if resp.Uptime == "" {
		t.Error("uptime missing")
	}
	if resp.Sessions.ActiveSessions != 1 || resp.Sessions.MaxSessions != 10 {
		t.Errorf("sessions = %+v", resp.Sessions)
	}
}

func TestHealth_DegradedWhenPoolNearlyFull(t *testing.T) {
	pool := newFakePool()
	for i := 0; i < 9; i++ {
		if _, err := pool.Create(context.Background(), "", nil); err != nil {
			t.Fatalf("create session %d: %v", i, err)
		}
	}
	r := testRouter(testDeps(pool, &scriptedLLM{}))

	w := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)

	var resp models.HealthResponse
	decodeInto(t, w, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q with 9/10 sessions", resp.Status)
	}
}
