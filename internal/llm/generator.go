package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/raine/telegram-identify-bot/internal/media"
)

var (
	// ErrMissingAPIKey is returned by every call of a generator built without credentials.
	ErrMissingAPIKey = errors.New("model API key is not configured")
	// ErrEmptyResponse is returned when the model answers without any text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Response is the raw text answer of a model call.
type Response struct {
	Text   string
	Usage  Usage
	Cached bool
}

// Generator sends one prompt, optionally accompanied by one inline image, to
// a remote model and returns its text unmodified.
type Generator interface {
	Generate(ctx context.Context, prompt string, image *media.InlinePayload) (*Response, error)
}

// ModelError reports a failed model call: transport errors, model-side
// errors, unusable responses and missing credentials. Op is "encode" when
// the image could not be prepared for the request.
type ModelError struct {
	Op    string
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func calculateCost(inputTokens, outputTokens int64, p pricing) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * p.inputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * p.outputPerMillion
	return inputCost + outputCost
}

// pricing is USD per million tokens.
type pricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

var modelPricing = map[string]pricing{
	"gemini-2.5-flash":       {inputPerMillion: 0.30, outputPerMillion: 2.50},
	"gemini-2.5-flash-lite":  {inputPerMillion: 0.10, outputPerMillion: 0.40},
	"gemini-3-flash-preview": {inputPerMillion: 0.50, outputPerMillion: 3.00},
	"gpt-4o":                 {inputPerMillion: 2.50, outputPerMillion: 10.00},
	"gpt-4o-mini":            {inputPerMillion: 0.15, outputPerMillion: 0.60},
}

func pricingFor(model string) pricing {
	return modelPricing[model]
}
