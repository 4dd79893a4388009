package retriever

import (
	"context"
	"math"
	"sort"

	"github.com/use-agent/webpilot/cache"
	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/llm"
)

// Embedding ranks fragments by cosine similarity between the query vector
// and fragment vectors. Fragment vectors are cached by model and text, so
// re-retrieval over an unchanged page only embeds the query.
type Embedding struct {
	embedder    llm.Embedder
	vectors     *cache.Cache
	topK        int
	chunkTokens int
}

// NewEmbedding creates an embedding retriever. vectors may be nil to
// disable caching.
func NewEmbedding(embedder llm.Embedder, vectors *cache.Cache, cfg config.RetrieverConfig) *Embedding {
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Embedding{
		embedder:    embedder,
		vectors:     vectors,
		topK:        topK,
		chunkTokens: cfg.ChunkTokens,
	}
}

// Name identifies the retriever in logs and navigation records.
func (e *Embedding) Name() string {
	return "EmbeddingRetriever"
}

// Retrieve chunks rawHTML and returns the topK fragments by cosine similarity.
func (e *Embedding) Retrieve(ctx context.Context, query, rawHTML string) ([]Fragment, error) {
	frags, err := Chunk(rawHTML, e.chunkTokens)
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	fragVecs, err := e.embedFragments(ctx, frags)
	if err != nil {
		return nil, err
	}

	for i := range frags {
		frags[i].Score = cosine(queryVec, fragVecs[i])
	}

	ranked := make([]Fragment, len(frags))
	copy(ranked, frags)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > e.topK {
		ranked = ranked[:e.topK]
	}
	return ranked, nil
}

// embedFragments resolves one vector per fragment, reading the cache first
// and embedding only the misses in a single batch.
func (e *Embedding) embedFragments(ctx context.Context, frags []Fragment) ([][]float32, error) {
	model := e.embedder.ModelName()
	vecs := make([][]float32, len(frags))

	var missTexts []string
	var missIdx []int
	for i, f := range frags {
		if e.vectors != nil {
			if v, ok := e.vectors.Get(cache.Key(model, f.Text)); ok {
				vecs[i] = v
				continue
			}
		}
		missTexts = append(missTexts, f.Text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		embedded, err := e.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			vecs[i] = embedded[j]
			if e.vectors != nil {
				e.vectors.Set(cache.Key(model, frags[i].Text), embedded[j])
			}
		}
	}

	return vecs, nil
}

// cosine computes cosine similarity. Mismatched or zero-norm vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
