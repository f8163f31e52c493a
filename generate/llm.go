// Package generate seeds carousel documents from a short brief using a
// text-generation model.
package generate

import (
	"context"
	"errors"
)

// ErrMissingCredential is returned when no API key is configured.
var ErrMissingCredential = errors.New("llm api key missing; set llm.api_key or CAROUSEL_API_KEY")

// Prompt is one completion request.
type Prompt struct {
	System string
	User   string
}

// LLMClient abstracts the model so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Settings configures a concrete client.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
}
