// Package vectorstore persists segment embeddings and answers
// similarity queries over them. Two backends are provided: a local
// brute-force store persisted to disk (the default for a bounded legal
// corpus) and a Qdrant-backed store for larger deployments.
package vectorstore

import (
	"context"
	"time"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
)

// DefaultTopK is the result count when a query does not override K.
const DefaultTopK = 5

// Metadata is the segment snapshot stored alongside each vector, enough
// to build citations without consulting another system.
type Metadata struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	Section    string `json:"section"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

// Entry is one (segment id, vector, metadata) triple owned by the store.
type Entry struct {
	SegmentID string    `json:"segment_id"`
	Vector    []float32 `json:"vector"`
	Meta      Metadata  `json:"meta"`
}

// Scored is an entry with its similarity to a query vector.
type Scored struct {
	Entry
	Score float64
}

// QueryOptions tunes a similarity query. K <= 0 selects DefaultTopK;
// Threshold <= 0 disables score filtering; Category, when set, excludes
// non-matching entries before the K cutoff.
type QueryOptions struct {
	K         int
	Threshold float64
	Category  string
}

// DocumentInfo summarizes one document's presence in the store.
type DocumentInfo struct {
	DocumentID string
	Title      string
	Source     string
	Category   string
	Segments   int
}

// Manifest records what a persisted index was built with. A loader must
// validate it before querying: vectors from a different model or
// dimension give silently wrong similarities.
type Manifest struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Entries   int       `json:"entries"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store is the vector index contract. Query is safe for concurrent use;
// Build swaps in a fresh index atomically so in-flight queries see a
// fully consistent view, old or new. Every mutation is atomic per call:
// a rejected batch leaves the store unchanged.
type Store interface {
	// Build discards all entries and indexes the given set from scratch.
	Build(ctx context.Context, entries []Entry) error

	// Upsert adds entries or replaces those sharing a segment id.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns up to K entries ordered by similarity descending,
	// ties broken by insertion order.
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Scored, error)

	// DeleteDocument removes every segment belonging to a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Documents lists indexed documents with segment counts.
	Documents(ctx context.Context) ([]DocumentInfo, error)

	// Count reports the number of entries.
	Count(ctx context.Context) (int, error)

	Health(ctx context.Context) error
	Close() error
}

// NewEntry snapshots a segment and its parent document into an Entry.
// The segment's embedding must already be computed.
func NewEntry(doc corpus.Document, seg corpus.Segment) Entry {
	return Entry{
		SegmentID: seg.ID,
		Vector:    seg.Embedding,
		Meta: Metadata{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Source:     doc.Source,
			Category:   doc.Category,
			Section:    seg.Section,
			Index:      seg.Index,
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
		},
	}
}
