// Package retrieve turns a query string into the top-K most similar stored
// chunks, with deterministic ordering.
package retrieve

import (
	"context"
	"fmt"
	"sort"
)

// Match is one retrieved chunk with its similarity score (higher is more
// relevant). Matches are transient per query and never persisted.
type Match struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	PageNumber int     `json:"page"`
	Score      float64 `json:"score"`
}

// Embedder converts query text into a vector with the same model used at
// ingestion time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Searcher returns the nearest stored chunks for a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Retriever embeds queries and searches the vector index.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
}

// NewRetriever creates a retriever returning at most topK matches per query.
func NewRetriever(embedder Embedder, searcher Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK}
}

// Retrieve returns matches ordered by descending score, ties broken by
// ascending chunk id. An empty index or a far-off query yields an empty
// slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Match, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.searcher.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	Order(matches)
	return matches, nil
}

// Order sorts matches by descending score, then ascending chunk id. The
// index already orders by distance but equal scores come back in storage
// order, so the tie-break is applied here for reproducible results.
func Order(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
}
