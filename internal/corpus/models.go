// Package corpus defines the legal document model and the sources that
// load documents into the indexing pipeline.
package corpus

import "time"

// Document is a single legal text as ingested. Documents are immutable;
// re-ingesting a changed text produces a new version with the same source.
type Document struct {
	ID         string    // UUID
	Title      string    // Human-readable title for citation
	Source     string    // Relative path or URL of the source file
	Category   string    // Legal category: "tax", "traffic", "labor", ...
	Text       string    // Full normalized text
	Version    int       // Incremented on re-ingestion
	IngestedAt time.Time // When this version was ingested
}

// Segment is a bounded slice of a document's text, the unit of retrieval.
// Start/End are byte offsets into Document.Text so the original passage
// can be reconstructed for citation. Embedding is nil until computed.
type Segment struct {
	ID         string
	DocumentID string
	Index      int    // Position within the document (0, 1, 2...)
	Section    string // Heading path, e.g. "# Tax Code > ## Late Filing"
	Start      int
	End        int
	Text       string
	Embedding  []float32
}
