package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

// NewClient creates an OpenAI client for embedding and classification.
// The client reads OPENAI_API_KEY from the environment; this fails fast
// when the key is missing instead of erroring on the first request.
func NewClient() (*openai.Client, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient()
	return &client, nil
}
