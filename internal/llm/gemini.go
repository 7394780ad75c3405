package llm

import (
	"context"
	"fmt"

	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// NewGeminiClient creates the process-wide Gemini client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiGenerator uses Google's Gemini API to generate text for a prompt and
// an optional image.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator wraps an existing client. A nil client produces a
// generator whose every call fails with ErrMissingAPIKey.
func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, image *media.InlinePayload) (*Response, error) {
	if g.client == nil {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: ErrMissingAPIKey}
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	if image != nil {
		data, err := image.Bytes()
		if err != nil {
			return nil, &ModelError{Op: "encode", Model: g.model, Err: err}
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: data, MIMEType: image.MIMEType},
		})
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: err}
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: ErrEmptyResponse}
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, pricingFor(g.model))
	}

	log.Info().
		Str("model", g.model).
		Bool("withImage", image != nil).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("gemini llm call")

	return &Response{Text: result.Text(), Usage: usage}, nil
}
