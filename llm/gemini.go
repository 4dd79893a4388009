package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
)

// GeminiClient generates completions through Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGeminiClient creates a completion client backed by the genai SDK.
func NewGeminiClient(cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, models.NewAgentError(models.ErrCodeLLMAuthFailure, "Gemini API key is required", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeLLMFailure, "failed to create Gemini client", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete sends a single user message and returns the model's reply.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if c.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.maxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", models.NewAgentError(models.ErrCodeLLMFailure, "Gemini request failed", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", models.NewAgentError(models.ErrCodeLLMFailure, "Gemini returned no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// ModelName reports the configured model identifier.
func (c *GeminiClient) ModelName() string {
	return c.model
}
