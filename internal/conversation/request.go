package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/media"
)

// Kind is the type of model call a request makes.
type Kind int

const (
	KindIdentify Kind = iota
	KindQuestions
	KindAnswer
)

func (k Kind) String() string {
	switch k {
	case KindIdentify:
		return "identify"
	case KindQuestions:
		return "questions"
	case KindAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Request is one model call prepared by a Conversation. It carries
// everything the call needs so it can run without touching the conversation.
type Request struct {
	ID       string
	Kind     Kind
	Prompt   string
	Image    *media.InlinePayload
	Keyword  string
	Question string

	generation uint64
	sequence   uint64
}

func newRequest(kind Kind, prompt string, image *media.InlinePayload, generation, sequence uint64, keyword, question string) *Request {
	return &Request{
		ID:         uuid.New().String(),
		Kind:       kind,
		Prompt:     prompt,
		Image:      image,
		Keyword:    keyword,
		Question:   question,
		generation: generation,
		sequence:   sequence,
	}
}

// Generation is the image generation the request was created for.
func (r *Request) Generation() uint64 {
	return r.generation
}

// Result is the outcome of running a Request.
type Result struct {
	Request *Request
	Text    string
	Usage   llm.Usage
	Cached  bool
	Err     error
}

// Run performs the model call.
func (r *Request) Run(ctx context.Context, gen llm.Generator) Result {
	resp, err := gen.Generate(ctx, r.Prompt, r.Image)
	if err != nil {
		return Result{Request: r, Err: err}
	}
	return Result{Request: r, Text: resp.Text, Usage: resp.Usage, Cached: resp.Cached}
}
