package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/use-agent/webpilot/config"
)

// Client generates text completions. Implementations must be safe for
// concurrent use.
type Client interface {
	// Complete returns the model's completion for a single prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// ModelName reports the configured model identifier for logging.
	ModelName() string
}

// New builds a completion client from configuration.
func New(cfg config.LLMConfig) (Client, error) {
	var client Client
	switch cfg.Provider {
	case "", "openai":
		client = NewOpenAIClient(cfg, nil)
	case "gemini":
		var err error
		client, err = NewGeminiClient(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	if cfg.MaxRPS > 0 {
		client = &pacedClient{
			inner:   client,
			limiter: rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1),
		}
	}
	return client, nil
}

// NewEmbedder builds an embedding client from configuration. The
// embedding backend follows the completion provider.
func NewEmbedder(cfg config.LLMConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(cfg, nil), nil
	case "gemini":
		return NewGeminiEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// pacedClient throttles outbound completion calls so the agent loop does
// not trip provider rate limits when several objectives run at once.
type pacedClient struct {
	inner   Client
	limiter *rate.Limiter
}

func (p *pacedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return p.inner.Complete(ctx, prompt)
}

func (p *pacedClient) ModelName() string {
	return p.inner.ModelName()
}
