// Package embedding maps text to fixed-dimension vectors via OpenAI's
// embedding API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model in use. The model identifier is
	// recorded in the vector store manifest; changing it requires a full
	// rebuild.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector size for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits.
	DefaultBatchSize = 500
)

// ErrEmbeddingService marks transient upstream embedding failures.
// Callers decide the retry policy.
var ErrEmbeddingService = errors.New("embedding service error")

// Embedder converts text to vectors. EmbedBatch is element-wise
// equivalent to repeated Embed calls; it exists for throughput.
// Implementations must be deterministic for a fixed model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// OpenAI implements Embedder against the OpenAI embeddings endpoint,
// batching requests and backing off on rate limit errors.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAI creates an embedder with the given client. batchSize <= 0
// selects DefaultBatchSize.
func NewOpenAI(client *openai.Client, batchSize int) *OpenAI {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAI{
		client:    client,
		model:     DefaultModel,
		dimension: DefaultDimension,
		batchSize: batchSize,
	}
}

func (e *OpenAI) Model() string  { return e.model }
func (e *OpenAI) Dimension() int { return e.dimension }

// Embed returns the vector for a single text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vectors, err := e.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// embedWithRetry calls the embeddings endpoint for one batch, retrying
// rate limit errors (HTTP 429) with exponential backoff. Other failures
// surface immediately as ErrEmbeddingService.
func (e *OpenAI) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	return vectors, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
