package mcp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/BestBeo/ChatbotLaw/internal/pipeline"
	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// previewLen caps source previews so tool output stays readable.
const previewLen = 200

// makeAskHandler creates the ask_law tool handler. It runs the full
// answer pipeline: classify, retrieve, compose, generate.
func makeAskHandler(pipe *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, AskLawInput,
) (*mcp.CallToolResult, AskLawOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskLawInput) (
		*mcp.CallToolResult, AskLawOutput, error,
	) {
		ans, err := pipe.Answer(ctx, input.Question, input.Category)
		if err != nil {
			return nil, AskLawOutput{}, fmt.Errorf("answer failed: %w", err)
		}

		sources := make([]SourceRef, 0, len(ans.Sources))
		for _, s := range ans.Sources {
			sources = append(sources, SourceRef{
				Title:   s.Meta.Title,
				Source:  s.Meta.Source,
				Section: s.Meta.Section,
				Score:   s.Score,
				Preview: preview(s.Meta.Text),
			})
		}

		return nil, AskLawOutput{
			Answer:            ans.Answer,
			Classification:    ans.Classification,
			RewrittenQuestion: ans.RewrittenQuestion,
			Sources:           sources,
		}, nil
	}
}

// makeSearchHandler creates the search_law tool handler. It retrieves
// segments without generating an answer, for clients that want raw
// evidence.
func makeSearchHandler(r *retriever.Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchLawInput,
) (*mcp.CallToolResult, SearchLawOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchLawInput) (
		*mcp.CallToolResult, SearchLawOutput, error,
	) {
		// An omitted min_score decodes as 0; signal "use the configured
		// default" rather than disabling the threshold.
		minScore := input.MinScore
		if minScore <= 0 {
			minScore = -1
		}
		hits, err := r.Retrieve(ctx, input.Query, input.Category, input.MaxResults, minScore)
		if err != nil {
			return nil, SearchLawOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(hits) == 0 {
			return nil, SearchLawOutput{
				Results: []SearchResult{},
				Message: "No matching legal provisions found. Try broader search terms.",
			}, nil
		}

		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, SearchResult{
				Title:    h.Meta.Title,
				Source:   h.Meta.Source,
				Category: h.Meta.Category,
				Section:  h.Meta.Section,
				Score:    h.Score,
				Excerpt:  preview(h.Meta.Text),
			})
		}
		return nil, SearchLawOutput{Results: results}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(store vectorstore.Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		infos, err := store.Documents(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		docs := make([]DocumentSummary, 0, len(infos))
		for _, info := range infos {
			docs = append(docs, DocumentSummary{
				Title:    info.Title,
				Source:   info.Source,
				Category: info.Category,
				Segments: info.Segments,
			})
		}
		return nil, ListDocumentsOutput{Documents: docs, Count: len(docs)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(store vectorstore.Store) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		infos, err := store.Documents(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		count, err := store.Count(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to count segments: %w", err)
		}

		categories := make(map[string]int)
		for _, info := range infos {
			categories[info.Category]++
		}

		return nil, StatusOutput{
			TotalDocuments: len(infos),
			TotalSegments:  count,
			Categories:     categories,
			StoreHealthy:   store.Health(ctx) == nil,
		}, nil
	}
}

// preview returns the first previewLen bytes of text floored to a rune
// boundary, with an ellipsis when truncated.
func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= previewLen {
		return text
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
