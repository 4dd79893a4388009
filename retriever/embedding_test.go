package retriever

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/use-agent/webpilot/cache"
	"github.com/use-agent/webpilot/config"
)

// fakeEmbedder maps texts onto a 2-dimensional space by topic keyword.
type fakeEmbedder struct {
	batches [][]string
}

func (f *fakeEmbedder) vec(text string) []float32 {
	switch {
	case strings.Contains(text, "login"):
		return []float32{1, 0}
	case strings.Contains(text, "weather"):
		return []float32{0, 1}
	default:
		return []float32{0.7, 0.7}
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return f.vec(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func TestEmbedding_RanksByCosine(t *testing.T) {
	fake := &fakeEmbedder{}
	e := NewEmbedding(fake, nil, config.RetrieverConfig{TopK: 2, ChunkTokens: 10})

	frags, err := e.Retrieve(context.Background(), "login", twoTopicPage)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}

	if !strings.Contains(frags[0].Text, "login") {
		t.Errorf("top fragment should be the login div, got: %q", frags[0].Text)
	}
	if math.Abs(frags[0].Score-1.0) > 1e-6 {
		t.Errorf("top score = %f, want 1.0", frags[0].Score)
	}
	if frags[1].Score > 0.01 {
		t.Errorf("orthogonal fragment score = %f, want ~0", frags[1].Score)
	}
}

func TestEmbedding_CacheSkipsReembedding(t *testing.T) {
	fake := &fakeEmbedder{}
	vectors := cache.New(100)
	e := NewEmbedding(fake, vectors, config.RetrieverConfig{TopK: 2, ChunkTokens: 10})

	for i := 0; i < 2; i++ {
		if _, err := e.Retrieve(context.Background(), "login", twoTopicPage); err != nil {
			t.Fatalf("Retrieve #%d returned error: %v", i+1, err)
		}
	}

	if len(fake.batches) != 1 {
		t.Errorf("expected fragments embedded once, got %d batch calls", len(fake.batches))
	}
}

func TestEmbedding_EmptyPage(t *testing.T) {
	fake := &fakeEmbedder{}
	e := NewEmbedding(fake, nil, config.RetrieverConfig{})

	frags, err := e.Retrieve(context.Background(), "anything", "")
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(frags) != 0 {
		t.Errorf("expected no fragments, got %d", len(frags))
	}
	if len(fake.batches) != 0 {
		t.Errorf("embedder should not be called for an empty page, got %d calls", len(fake.batches))
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosine = %f, want %f", got, tt.want)
			}
		})
	}
}
