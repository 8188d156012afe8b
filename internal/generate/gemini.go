// Package generate invokes the generative model and packages its output
// with provenance.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/BestBeo/ChatbotLaw/internal/prompt"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// DefaultModel is the Gemini model used for answer generation.
const DefaultModel = "gemini-1.5-flash"

// ErrGeneration marks upstream generation failures, including timeouts.
// A failed generation never degrades into a partial or fabricated
// answer; the error is the whole result.
var ErrGeneration = errors.New("generation error")

// AnswerResult is a generated answer with its provenance. Sources are
// the segments that were in the prompt, not citations re-derived from
// model output: parsing citations back out of generated text is
// unreliable.
type AnswerResult struct {
	Answer      string
	Sources     []vectorstore.Scored
	Model       string
	GeneratedAt time.Time
}

// Generator produces an answer for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt) (*AnswerResult, error)
}

// Gemini implements Generator with the Google generative AI client.
type Gemini struct {
	model *genai.GenerativeModel
	name  string
}

// NewGemini creates a generator from GEMINI_API_KEY. modelName == ""
// selects DefaultModel.
func NewGemini(ctx context.Context, modelName string) (*Gemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Legal answers should track the provisions, not improvise.
	model.SetTemperature(0.2)

	return &Gemini{model: model, name: modelName}, nil
}

// Generate invokes the model with the prompt text. The context carries
// the caller's timeout; a deadline surfaces as ErrGeneration.
func (g *Gemini) Generate(ctx context.Context, p *prompt.Prompt) (*AnswerResult, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(p.Text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	answer := collectText(resp)
	if answer == "" {
		return nil, fmt.Errorf("%w: model returned no text", ErrGeneration)
	}

	return &AnswerResult{
		Answer:      answer,
		Sources:     p.Segments,
		Model:       g.name,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
