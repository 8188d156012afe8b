package mcp

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

type stubEmbedder struct {
	vector []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) Model() string  { return "stub" }
func (s *stubEmbedder) Dimension() int { return 3 }

// The retriever is configured with a 0.5 threshold; omitting min_score
// must honor it, not disable filtering.
func TestSearchLawOmittedMinScoreUsesDefault(t *testing.T) {
	store := vectorstore.NewLocal("stub", 3, "")
	err := store.Build(context.Background(), []vectorstore.Entry{
		{SegmentID: "near", Vector: []float32{1, 0, 0}, Meta: vectorstore.Metadata{DocumentID: "d1", Category: "tax", Text: "a"}},
		{SegmentID: "far", Vector: []float32{0.2, 0.9, 0}, Meta: vectorstore.Metadata{DocumentID: "d2", Category: "tax", Text: "b"}},
	})
	require.NoError(t, err)

	r := retriever.New(&stubEmbedder{vector: []float32{1, 0, 0}}, store, 5, 0.5)
	handler := makeSearchHandler(r)

	_, out, err := handler(context.Background(), nil, SearchLawInput{Query: "late filing"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1, "configured threshold must filter the far segment")

	_, out, err = handler(context.Background(), nil, SearchLawInput{Query: "late filing", MinScore: 0.1})
	require.NoError(t, err)
	assert.Len(t, out.Results, 2, "explicit min_score must override the default")
}

func TestPreviewFloorsToRuneBoundary(t *testing.T) {
	// Three-byte runes; previewLen is not a multiple of three.
	text := strings.Repeat("ế", 100)
	p := preview(text)

	assert.True(t, utf8.ValidString(p))
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.LessOrEqual(t, len(p), previewLen+len("..."))
}
