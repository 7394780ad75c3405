package llm

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/rs/zerolog/log"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIGenerator uses the OpenAI Responses API. Images are sent inline as data URLs.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates the process-wide OpenAI client. An empty apiKey
// produces a generator whose every call fails with ErrMissingAPIKey.
func NewOpenAIGenerator(apiKey, model string, opts ...option.RequestOption) *OpenAIGenerator {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if apiKey == "" {
		return &OpenAIGenerator{model: model}
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIGenerator{client: &client, model: model}
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, image *media.InlinePayload) (*Response, error) {
	if g.client == nil {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: ErrMissingAPIKey}
	}

	content := responses.ResponseInputMessageContentListParam{
		{
			OfInputText: &responses.ResponseInputTextParam{
				Text: prompt,
			},
		},
	}
	if image != nil {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				Detail:   responses.ResponseInputImageDetailAuto,
				ImageURL: openai.String(image.DataURL()),
			},
		})
	}

	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: openai.ChatModel(g.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: err}
	}

	text := resp.OutputText()
	if text == "" {
		return nil, &ModelError{Op: "generate", Model: g.model, Err: ErrEmptyResponse}
	}

	usage := Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, pricingFor(g.model))

	log.Info().
		Str("model", g.model).
		Bool("withImage", image != nil).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("openai llm call")

	return &Response{Text: text, Usage: usage}, nil
}
