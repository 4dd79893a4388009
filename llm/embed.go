package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
)

// Embedder turns text into dense vectors. Implementations must be safe
// for concurrent use.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName reports the configured model identifier for logging.
	ModelName() string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIEmbedder creates an embedding client for an OpenAI-compatible
// endpoint. Pass nil to use a default http.Client with the configured
// timeout.
func NewOpenAIEmbedder(cfg config.LLMConfig, httpClient *http.Client) *OpenAIEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIEmbedder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.EmbedModel,
	}
}

// embedRequest is the OpenAI embeddings request body.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the minimal OpenAI embeddings response we need.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := e.baseURL + "/embeddings"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "embedding request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "failed to read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyLLMError(resp.StatusCode, respBody)
	}

	var embResp embedResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "failed to parse embedding response", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure,
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(embResp.Data), len(texts)), nil)
	}

	// The API may return vectors out of order; index restores it.
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, models.NewAgentError(models.ErrCodeLLMFailure,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// ModelName reports the configured model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// GeminiEmbedder generates embeddings through Google's Gemini API.
type GeminiEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGeminiEmbedder creates an embedding client backed by the genai SDK.
func NewGeminiEmbedder(cfg config.LLMConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, models.NewAgentError(models.ErrCodeLLMAuthFailure, "Gemini API key is required", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "failed to create Gemini client", err)
	}

	return &GeminiEmbedder{
		client:   client,
		model:    cfg.EmbedModel,
		taskType: "SEMANTIC_SIMILARITY",
	}, nil
}

// Embed returns the vector for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "Gemini embed failed", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure,
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(result.Embeddings), len(texts)), nil)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// ModelName reports the configured model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
