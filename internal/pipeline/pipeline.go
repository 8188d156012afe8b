// Package pipeline orchestrates the answer path (embed → retrieve →
// compose → generate) and owns the vector store's build/refresh
// lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BestBeo/ChatbotLaw/internal/chunker"
	"github.com/BestBeo/ChatbotLaw/internal/classify"
	"github.com/BestBeo/ChatbotLaw/internal/embedding"
	"github.com/BestBeo/ChatbotLaw/internal/generate"
	"github.com/BestBeo/ChatbotLaw/internal/prompt"
	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// Stage names the step of the answer state machine a pipeline
// invocation is in. Each invocation runs Idle → Embedding → Retrieving
// → Composing → Generating → Done, jumping to Failed on an
// unrecoverable error.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageComposing  Stage = "composing"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// StageError reports which stage an answer invocation failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// NoContextAnswer is returned when retrieval finds nothing relevant.
// The generator is not invoked on an empty evidence set; an honest
// "nothing found" beats a hallucinated answer.
const NoContextAnswer = "No relevant legal provisions were found in the corpus for this question."

// DefaultMaxRetries bounds orchestrator-level retries of transient
// upstream failures. Retry policy lives here, not in each component,
// so it stays centralized and testable.
const DefaultMaxRetries = 2

// Answer is the pipeline's user-facing result.
type Answer struct {
	Classification    string
	RewrittenQuestion string
	generate.AnswerResult
}

// Config wires the pipeline's collaborators. Classifier is optional;
// without it questions are retrieved as asked, with only the caller's
// category hint.
type Config struct {
	Chunker    *chunker.Chunker
	Embedder   embedding.Embedder
	Store      vectorstore.Store
	Retriever  *retriever.Retriever
	Composer   *prompt.Composer
	Generator  generate.Generator
	Classifier classify.Classifier
	Logger     *slog.Logger
	MaxRetries uint64
}

// Pipeline sequences the components. It holds no per-invocation state:
// Answer may run concurrently from many goroutines, all read-only
// against the store.
type Pipeline struct {
	chunker    *chunker.Chunker
	embedder   embedding.Embedder
	store      vectorstore.Store
	retriever  *retriever.Retriever
	composer   *prompt.Composer
	generator  generate.Generator
	classifier classify.Classifier
	logger     *slog.Logger
	maxRetries uint64
}

// New creates a Pipeline from the config.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Pipeline{
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		retriever:  cfg.Retriever,
		composer:   cfg.Composer,
		generator:  cfg.Generator,
		classifier: cfg.Classifier,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Answer runs one full pipeline invocation for the question. A caller
// category hint skips classification; otherwise the classifier supplies
// category and retrieval phrasing, and its failure degrades to the raw
// question rather than failing the invocation.
func (p *Pipeline) Answer(ctx context.Context, question, categoryHint string) (*Answer, error) {
	start := time.Now()

	category := categoryHint
	retrievalQuestion := question
	classification := categoryHint

	if p.classifier != nil && categoryHint == "" {
		result, err := p.classifier.Classify(ctx, question)
		if err != nil {
			p.logger.Warn("classification failed, using raw question", "error", err)
		} else {
			category = result.Category
			classification = result.Category
			retrievalQuestion = result.RewrittenQuestion
		}
	}

	// Embedding + Retrieving. The retriever embeds internally; the
	// failed stage is recovered from the error's type.
	var hits []vectorstore.Scored
	err := p.retryTransient(ctx, embedding.ErrEmbeddingService, func() error {
		var err error
		hits, err = p.retriever.Retrieve(ctx, retrievalQuestion, category, 0, -1)
		return err
	})
	if err != nil {
		stage := StageRetrieving
		if errors.Is(err, embedding.ErrEmbeddingService) {
			stage = StageEmbedding
		}
		return nil, p.fail(stage, question, err)
	}

	if len(hits) == 0 {
		p.logger.Info("no relevant context found", "question", question, "category", category)
		return &Answer{
			Classification:    classification,
			RewrittenQuestion: retrievalQuestion,
			AnswerResult: generate.AnswerResult{
				Answer:      NoContextAnswer,
				Sources:     []vectorstore.Scored{},
				GeneratedAt: time.Now().UTC(),
			},
		}, nil
	}

	composed, err := p.composer.Compose(question, category, hits)
	if err != nil {
		return nil, p.fail(StageComposing, question, err)
	}

	var result *generate.AnswerResult
	err = p.retryTransient(ctx, generate.ErrGeneration, func() error {
		var err error
		result, err = p.generator.Generate(ctx, composed)
		return err
	})
	if err != nil {
		return nil, p.fail(StageGenerating, question, err)
	}

	p.logger.Info("answered question",
		"category", category,
		"sources", len(result.Sources),
		"duration", time.Since(start),
	)
	return &Answer{
		Classification:    classification,
		RewrittenQuestion: retrievalQuestion,
		AnswerResult:      *result,
	}, nil
}

// retryTransient retries op with exponential backoff while it fails
// with the given transient sentinel, up to maxRetries extra attempts.
// Any other error is structural and propagates immediately.
func (p *Pipeline) retryTransient(ctx context.Context, transient error, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, transient) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx))
}

func (p *Pipeline) fail(stage Stage, question string, err error) error {
	p.logger.Error("pipeline failed", "stage", string(stage), "question", question, "error", err)
	return &StageError{Stage: stage, Err: err}
}
