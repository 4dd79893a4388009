// Package retriever ranks page snapshot fragments against a natural-language
// query. The navigation engine feeds the winning fragments into the
// action-generation prompt so the model sees only the relevant slice of a
// page instead of the full DOM.
package retriever

import (
	"context"
	"fmt"

	"github.com/use-agent/webpilot/cache"
	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
)

// Fragment is one scored piece of a page snapshot.
type Fragment struct {
	// Selector locates the fragment's root element in the live DOM. For a
	// fragment assembled from several siblings it points at their parent.
	Selector string `json:"selector"`

	// HTML is the fragment's outer HTML.
	HTML string `json:"html"`

	// Text is the fragment's visible text plus attribute text
	// (placeholders, labels), used for scoring.
	Text string `json:"text"`

	// Score is the retriever-assigned relevance, higher is better.
	Score float64 `json:"score"`
}

// Retriever selects the fragments of a page most relevant to a query.
type Retriever interface {
	// Name identifies the retriever in logs and navigation records.
	Name() string

	// Retrieve chunks rawHTML and returns the top fragments for the query,
	// ordered by descending score.
	Retrieve(ctx context.Context, query, rawHTML string) ([]Fragment, error)
}

// New builds a retriever from configuration. The embedding retriever needs
// an embedder; the sparse retriever works offline.
func New(cfg config.RetrieverConfig, embedder llm.Embedder, vectors *cache.Cache) (Retriever, error) {
	switch cfg.Kind {
	case "", "embedding":
		if embedder == nil {
			return nil, models.NewAgentError(models.ErrCodeInvalidInput,
				"embedding retriever requires an embedder", nil)
		}
		return NewEmbedding(embedder, vectors, cfg), nil
	case "sparse":
		return NewSparse(cfg), nil
	default:
		return nil, models.NewAgentError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown retriever kind: %s", cfg.Kind), nil)
	}
}
