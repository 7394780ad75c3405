package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/raine/telegram-identify-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) Generate(ctx context.Context, prompt string, image *media.InlinePayload) (*Response, error) {
	args := m.Called(ctx, prompt, image)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func testPayload(t *testing.T) *media.InlinePayload {
	t.Helper()
	img, err := media.FromBytes([]byte("fake image bytes"), "image/png")
	require.NoError(t, err)
	p, err := media.Encode(img)
	require.NoError(t, err)
	return &p
}

func TestIdentifyPrompt(t *testing.T) {
	assert.Equal(t,
		"Identify this image and provide its name and important information including a brief explanation about that image. ",
		IdentifyPrompt(""))

	refined := IdentifyPrompt("architecture")
	assert.True(t, strings.HasSuffix(refined, "Focus more on aspects related to architecture."))
	assert.True(t, strings.HasPrefix(refined, IdentifyPrompt("")))
}

func TestRelatedQuestionsPrompt(t *testing.T) {
	got := RelatedQuestionsPrompt("Eiffel Tower\nLocated in Paris")
	assert.Contains(t, got, "generate 5 related questions")
	assert.Contains(t, got, "subjects: Eiffel Tower\nLocated in Paris\n\n")
	assert.True(t, strings.HasSuffix(got, "one per line."))
}

func TestAnswerPrompt(t *testing.T) {
	assert.Equal(t, "Answer the following question based on the image: When was it built?", AnswerPrompt("When was it built?"))
}

func TestModelError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ModelError{Op: "generate", Model: "m", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "generate (m): boom", err.Error())

	var modelErr *ModelError
	assert.True(t, errors.As(err, &modelErr))
}

func TestGenerators_MissingAPIKey(t *testing.T) {
	generators := map[string]Generator{
		"gemini": NewGeminiGenerator(nil, ""),
		"openai": NewOpenAIGenerator("", ""),
	}
	for name, g := range generators {
		t.Run(name, func(t *testing.T) {
			resp, err := g.Generate(context.Background(), "hello", nil)
			assert.Nil(t, resp)

			var modelErr *ModelError
			require.True(t, errors.As(err, &modelErr))
			assert.ErrorIs(t, err, ErrMissingAPIKey)
		})
	}
}

func TestNewGeminiClient_MissingAPIKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDefaultModels(t *testing.T) {
	assert.Equal(t, DefaultGeminiModel, NewGeminiGenerator(nil, "").Model())
	assert.Equal(t, DefaultOpenAIModel, NewOpenAIGenerator("", "").Model())
	assert.Equal(t, "gpt-4o-mini", NewOpenAIGenerator("", "gpt-4o-mini").Model())
}

func TestCalculateCost(t *testing.T) {
	cost := calculateCost(1_000_000, 1_000_000, pricingFor("gemini-2.5-flash"))
	assert.InDelta(t, 2.80, cost, 1e-9)
	assert.Zero(t, calculateCost(1000, 1000, pricingFor("unknown-model")))
}

func TestGeminiGenerator_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "**Eiffel Tower**"}]}}],
			"usageMetadata": {"promptTokenCount": 100, "candidatesTokenCount": 20, "totalTokenCount": 120}
		}`)
	}))
	defer srv.Close()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)

	g := NewGeminiGenerator(client, "")
	resp, err := g.Generate(context.Background(), IdentifyPrompt(""), testPayload(t))
	require.NoError(t, err)

	assert.Equal(t, "**Eiffel Tower**", resp.Text)
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(20), resp.Usage.OutputTokens)
	assert.Equal(t, int64(120), resp.Usage.TotalTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)

	raw, _ := json.Marshal(body)
	assert.Contains(t, string(raw), "image/png")
}

func TestGeminiGenerator_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates": []}`)
	}))
	defer srv.Close()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)

	_, err = NewGeminiGenerator(client, "").Generate(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiGenerator_MalformedPayload(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)

	payload := &media.InlinePayload{MIMEType: "image/png", Data: "!!!not base64"}
	_, err = NewGeminiGenerator(client, "gemini-test").Generate(context.Background(), "hi", payload)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "encode", modelErr.Op)
	assert.Equal(t, "gemini-test", modelErr.Model)

	var encErr *media.EncodingError
	assert.ErrorAs(t, err, &encErr)
	assert.False(t, called, "no request for an unreadable image")
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/responses"))
		raw, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "resp_1",
			"object": "response",
			"created_at": 0,
			"model": "gpt-4o",
			"status": "completed",
			"output": [{
				"type": "message",
				"id": "msg_1",
				"status": "completed",
				"role": "assistant",
				"content": [{"type": "output_text", "text": "Q1?\nQ2?", "annotations": []}]
			}],
			"usage": {"input_tokens": 40, "output_tokens": 8, "total_tokens": 48}
		}`)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	resp, err := g.Generate(context.Background(), AnswerPrompt("Who built it?"), testPayload(t))
	require.NoError(t, err)

	assert.Equal(t, "Q1?\nQ2?", resp.Text)
	assert.Equal(t, int64(40), resp.Usage.InputTokens)
	assert.Equal(t, int64(48), resp.Usage.TotalTokens)
	assert.Contains(t, string(raw), "data:image/png;base64,")
	assert.Contains(t, string(raw), "Who built it?")
}

func TestOpenAIGenerator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	_, err := g.Generate(context.Background(), "hi", nil)

	var modelErr *ModelError
	assert.True(t, errors.As(err, &modelErr))
}

func TestCachedGenerator_HitSkipsInner(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	inner := new(generatorMock)
	image := testPayload(t)
	inner.On("Generate", mock.Anything, "prompt", image).
		Return(&Response{Text: "answer", Usage: Usage{InputTokens: 10}}, nil).Once()

	g := NewCachedGenerator(inner, "m", store)

	first, err := g.Generate(context.Background(), "prompt", image)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "answer", first.Text)

	second, err := g.Generate(context.Background(), "prompt", image)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "answer", second.Text)
	assert.Zero(t, second.Usage.InputTokens)

	inner.AssertExpectations(t)
}

func TestCachedGenerator_FailuresAreNotCached(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	inner := new(generatorMock)
	inner.On("Generate", mock.Anything, "prompt", (*media.InlinePayload)(nil)).
		Return(nil, &ModelError{Op: "generate", Err: errors.New("down")}).Once()
	inner.On("Generate", mock.Anything, "prompt", (*media.InlinePayload)(nil)).
		Return(&Response{Text: "ok"}, nil).Once()

	g := NewCachedGenerator(inner, "m", store)

	_, err = g.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)

	resp, err := g.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	inner.AssertExpectations(t)
}

func TestRequestHash(t *testing.T) {
	image := testPayload(t)

	assert.Equal(t, requestHash("m", "p", image), requestHash("m", "p", image))
	assert.NotEqual(t, requestHash("m", "p", image), requestHash("m", "p", nil))
	assert.NotEqual(t, requestHash("m", "p", nil), requestHash("other", "p", nil))
	assert.NotEqual(t, requestHash("ab", "c", nil), requestHash("a", "bc", nil))
}
