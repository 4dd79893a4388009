package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:    "openai",
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "gpt-4o",
		EmbedModel:  "text-embedding-3-large",
		Temperature: 0,
		Timeout:     5 * time.Second,
	}
}

func TestOpenAIComplete(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "click the button"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(testLLMConfig(srv.URL), nil)

	got, err := c.Complete(context.Background(), "what next?")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "click the button" {
		t.Errorf("Complete = %q, want %q", got, "click the button")
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("request model = %q, want gpt-4o", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v, want single user message", gotReq.Messages)
	}
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error": {"message": "bad key"}}`,
			wantCode: models.ErrCodeLLMAuthFailure,
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{"error": {"message": "no access"}}`,
			wantCode: models.ErrCodeLLMAuthFailure,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error": {"message": "slow down"}}`,
			wantCode: models.ErrCodeLLMRateLimited,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error": {"message": "boom"}}`,
			wantCode: models.ErrCodeLLMFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(testLLMConfig(srv.URL), nil)

			_, err := c.Complete(context.Background(), "prompt")
			if err == nil {
				t.Fatal("Complete returned nil error")
			}
			var agentErr *models.AgentError
			if !errors.As(err, &agentErr) {
				t.Fatalf("error type = %T, want *models.AgentError", err)
			}
			if agentErr.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", agentErr.Code, tt.wantCode)
			}
		})
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(testLLMConfig(srv.URL), nil)

	_, err := c.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Complete returned nil error for empty choices")
	}
}

func TestOpenAIEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("request path = %q, want /embeddings", r.URL.Path)
		}
		// Out of order on purpose.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(testLLMConfig(srv.URL), nil)

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors not restored to input order: %v", vectors)
	}
}

func TestOpenAIEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{1}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(testLLMConfig(srv.URL), nil)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("EmbedBatch returned nil error for count mismatch")
	}
}

func TestOpenAIEmbedBatchEmpty(t *testing.T) {
	e := NewOpenAIEmbedder(testLLMConfig("http://unused"), nil)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if vectors != nil {
		t.Errorf("EmbedBatch on empty input = %v, want nil", vectors)
	}
}
