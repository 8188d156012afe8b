// Package mcp exposes the legal question-answering pipeline as MCP
// tools over stdio or streamable HTTP.
package mcp

// AskLawInput defines the input parameters for the ask_law tool.
type AskLawInput struct {
	// Question is the legal question in natural language.
	Question string `json:"question" jsonschema:"required,description=The legal question to answer"`
	// Category optionally restricts retrieval to one legal category.
	Category string `json:"category,omitempty" jsonschema:"description=Optional legal category filter (tax traffic labor civil criminal)"`
}

// AskLawOutput contains a generated answer with its provenance.
type AskLawOutput struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Classification is the inferred (or caller-supplied) legal category.
	Classification string `json:"classification,omitempty"`
	// RewrittenQuestion is the retrieval phrasing the pipeline used.
	RewrittenQuestion string `json:"rewritten_question,omitempty"`
	// Sources lists the evidence segments behind the answer.
	Sources []SourceRef `json:"sources"`
}

// SourceRef is one cited evidence segment.
type SourceRef struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// SearchLawInput defines the input parameters for the search_law tool.
type SearchLawInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant legal provisions"`
	// Category optionally restricts the search to one legal category.
	Category string `json:"category,omitempty" jsonschema:"description=Optional legal category filter (tax traffic labor civil criminal)"`
	// MaxResults is the maximum number of segments to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of segments to return"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,description=Minimum similarity score threshold (0-1)"`
}

// SearchLawOutput contains the search results.
type SearchLawOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g. "no matches found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one segment match from semantic search.
type SearchResult struct {
	Title    string  `json:"title"`
	Source   string  `json:"source"`
	Category string  `json:"category"`
	Section  string  `json:"section,omitempty"`
	Score    float64 `json:"score"`
	Excerpt  string  `json:"excerpt"`
}

// ListDocumentsInput defines the input for the list_documents tool.
// The tool takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists every indexed document.
type ListDocumentsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// DocumentSummary is one indexed document.
type DocumentSummary struct {
	Title    string `json:"title"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Segments int    `json:"segments"`
}

// StatusInput defines the input for the get_index_status tool.
// The tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the current state of the legal index.
type StatusOutput struct {
	// TotalDocuments is the number of indexed documents.
	TotalDocuments int `json:"total_documents"`
	// TotalSegments is the number of indexed segments.
	TotalSegments int `json:"total_segments"`
	// Categories maps each indexed category to its document count.
	Categories map[string]int `json:"categories"`
	// StoreHealthy reports whether the vector store is reachable.
	StoreHealthy bool `json:"store_healthy"`
}
