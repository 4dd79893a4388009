package retriever

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/use-agent/webpilot/config"
)

// stopwords are excluded from sparse scoring.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true,
	"in": true, "on": true, "at": true, "and": true, "or": true,
	"for": true, "with": true, "is": true, "are": true, "be": true,
	"this": true, "that": true, "it": true, "as": true, "by": true,
}

// Sparse ranks fragments by TF-IDF keyword overlap with the query.
// It makes no network calls, which also makes it the fallback when no
// embedding provider is configured.
type Sparse struct {
	topK        int
	chunkTokens int
}

// NewSparse creates a keyword-overlap retriever.
func NewSparse(cfg config.RetrieverConfig) *Sparse {
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Sparse{topK: topK, chunkTokens: cfg.ChunkTokens}
}

// Name identifies the retriever in logs and navigation records.
func (s *Sparse) Name() string {
	return "SparseRetriever"
}

// Retrieve chunks rawHTML and returns the topK fragments by term overlap.
// A query with no scorable terms falls back to document order.
func (s *Sparse) Retrieve(ctx context.Context, query, rawHTML string) ([]Fragment, error) {
	frags, err := Chunk(rawHTML, s.chunkTokens)
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, nil
	}

	queryTerms := termCounts(query)

	// Document frequency over the query terms only.
	docs := make([]map[string]int, len(frags))
	df := make(map[string]int)
	for i, f := range frags {
		docs[i] = termCounts(f.Text)
		for term := range queryTerms {
			if docs[i][term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(frags))
	for i := range frags {
		var score float64
		total := 0
		for _, c := range docs[i] {
			total += c
		}
		for term, qc := range queryTerms {
			tf := docs[i][term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + n/float64(1+df[term]))
			score += float64(qc) * (1 + math.Log(float64(tf))) * idf
		}
		if total > 0 {
			score /= math.Sqrt(float64(total))
		}
		frags[i].Score = score
	}

	ranked := make([]Fragment, len(frags))
	copy(ranked, frags)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if ranked[0].Score == 0 {
		// Nothing matched, keep document order.
		ranked = frags
	}

	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}
	return ranked, nil
}

// termCounts tokenizes text into lowercase terms, trimming punctuation and
// dropping stopwords and single characters.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		term := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(term) < 2 || stopwords[term] {
			continue
		}
		counts[term]++
	}
	return counts
}
