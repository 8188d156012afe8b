// Package classify infers the legal category of a freeform question and
// rewrites it for retrieval. Classification is a collaborator of the
// answer pipeline, not part of it: failures degrade to the raw question
// with no category instead of failing the answer path.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BestBeo/ChatbotLaw/internal/corpus"
)

// Result is the classifier's verdict. Category is "" when the question
// does not fit the closed category set; RewrittenQuestion is a
// self-contained retrieval-friendly restatement.
type Result struct {
	Category          string `json:"category"`
	RewrittenQuestion string `json:"rewritten_question"`
}

// Classifier infers category and retrieval phrasing for a question.
type Classifier interface {
	Classify(ctx context.Context, question string) (*Result, error)
}

// OpenAI implements Classifier with a single chat completion returning
// a JSON object.
type OpenAI struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAI creates a classifier using the given client.
func NewOpenAI(client *openai.Client) *OpenAI {
	return &OpenAI{client: client, model: openai.ChatModelGPT4oMini}
}

// Classify runs the classification prompt. Unknown or off-list
// categories are normalized to "".
func (c *OpenAI) Classify(ctx context.Context, question string) (*Result, error) {
	prompt := fmt.Sprintf(`Classify this legal question and rewrite it as a standalone search query.

Question: %s

Allowed categories: %s. Use "" if none fits.

Respond in JSON format:
{"category": "one of the allowed categories or empty", "rewritten_question": "self-contained restatement of the question"}`,
		question, strings.Join(corpus.KnownCategories(), ", "))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("parse classifier response: %w", err)
	}

	result.Category = strings.ToLower(strings.TrimSpace(result.Category))
	if !corpus.IsKnownCategory(result.Category) {
		result.Category = ""
	}
	if strings.TrimSpace(result.RewrittenQuestion) == "" {
		result.RewrittenQuestion = question
	}
	return &result, nil
}
