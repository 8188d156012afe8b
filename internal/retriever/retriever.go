// Package retriever turns a legal question into ranked evidence
// segments from the vector store.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/BestBeo/ChatbotLaw/internal/embedding"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// Retriever embeds a normalized question and queries the store. The
// category filter is applied by the store before the K cutoff, so
// in-category evidence is never displaced by higher-scoring noise from
// other categories.
type Retriever struct {
	embedder  embedding.Embedder
	store     vectorstore.Store
	topK      int
	threshold float64
}

// New creates a Retriever with default K and threshold, both
// overridable per call.
func New(embedder embedding.Embedder, store vectorstore.Store, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns up to k segments relevant to the question, most
// similar first. k <= 0 and threshold < 0 fall back to the retriever's
// defaults. An empty result is a valid outcome, not an error: absence
// of evidence is reported, never invented.
func (r *Retriever) Retrieve(ctx context.Context, question, category string, k int, threshold float64) ([]vectorstore.Scored, error) {
	question = NormalizeQuestion(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	if k <= 0 {
		k = r.topK
	}
	if threshold < 0 {
		threshold = r.threshold
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.store.Query(ctx, vector, vectorstore.QueryOptions{
		K:         k,
		Threshold: threshold,
		Category:  category,
	})
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	return hits, nil
}

// NormalizeQuestion collapses internal whitespace and trims the
// question so that equivalent phrasings embed identically.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
