package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
	"github.com/BestBeo/ChatbotLaw/internal/embedding"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// Persister is implemented by stores that persist to local disk. Remote
// backends are durable on their own and don't implement it.
type Persister interface {
	Save() error
}

// FailedDoc records one document that could not be indexed.
type FailedDoc struct {
	Source string
	Err    error
}

// IndexResult summarizes a Rebuild or Refresh run.
type IndexResult struct {
	TotalDocs     int
	IndexedDocs   int
	TotalSegments int
	FailedDocs    []FailedDoc
	Duration      time.Duration
}

// Rebuild chunks and embeds the documents and replaces the store's
// contents with the result in a single atomic swap. Per-document
// failures are recorded and skipped; the rebuild fails only when no
// document could be indexed or the store rejects the batch.
func (p *Pipeline) Rebuild(ctx context.Context, docs []corpus.Document) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{TotalDocs: len(docs)}

	var entries []vectorstore.Entry
	for _, doc := range docs {
		docEntries, err := p.indexDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("skipping document", "source", doc.Source, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Source: doc.Source, Err: err})
			continue
		}
		entries = append(entries, docEntries...)
		result.IndexedDocs++
		result.TotalSegments += len(docEntries)
	}

	if result.IndexedDocs == 0 && len(docs) > 0 {
		return nil, fmt.Errorf("rebuild: all %d documents failed", len(docs))
	}

	if err := p.store.Build(ctx, entries); err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	if err := p.persist(); err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("index rebuilt",
		"documents", result.IndexedDocs,
		"segments", result.TotalSegments,
		"failed", len(result.FailedDocs),
		"duration", result.Duration,
	)
	return result, nil
}

// Refresh re-indexes the given documents in place: each document's old
// segments are deleted and its new ones upserted, leaving the rest of
// the store untouched. Documents already indexed under the same source
// are matched by source path, so a changed file replaces itself even
// though its content-derived IDs differ.
func (p *Pipeline) Refresh(ctx context.Context, docs []corpus.Document) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{TotalDocs: len(docs)}

	existing, err := p.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	bySource := make(map[string]string, len(existing))
	for _, info := range existing {
		bySource[info.Source] = info.DocumentID
	}

	for _, doc := range docs {
		entries, err := p.indexDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("skipping document", "source", doc.Source, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Source: doc.Source, Err: err})
			continue
		}
		if oldID, ok := bySource[doc.Source]; ok && oldID != doc.ID {
			if err := p.store.DeleteDocument(ctx, oldID); err != nil {
				return nil, fmt.Errorf("refresh %s: %w", doc.Source, err)
			}
		}
		if err := p.store.Upsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("refresh %s: %w", doc.Source, err)
		}
		result.IndexedDocs++
		result.TotalSegments += len(entries)
	}

	if err := p.persist(); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("index refreshed",
		"documents", result.IndexedDocs,
		"segments", result.TotalSegments,
		"failed", len(result.FailedDocs),
		"duration", result.Duration,
	)
	return result, nil
}

// indexDocument chunks one document and embeds its segments in a
// single batch call.
func (p *Pipeline) indexDocument(ctx context.Context, doc corpus.Document) ([]vectorstore.Entry, error) {
	segments, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	var vectors [][]float32
	err = p.retryTransient(ctx, embedding.ErrEmbeddingService, func() error {
		var err error
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("embed: got %d vectors for %d segments", len(vectors), len(segments))
	}

	entries := make([]vectorstore.Entry, len(segments))
	for i := range segments {
		segments[i].Embedding = vectors[i]
		entries[i] = vectorstore.NewEntry(doc, segments[i])
	}
	return entries, nil
}

func (p *Pipeline) persist() error {
	if persister, ok := p.store.(Persister); ok {
		if err := persister.Save(); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
	}
	return nil
}
