// Package conversation holds the state of one image conversation: the
// selected image, its description and everything derived from it.
//
// A Conversation has a single owner and is not safe for concurrent use. Model
// calls are started with the Begin methods, executed with Request.Run on any
// goroutine, and handed back to the owner with Complete.
package conversation

import (
	"errors"
	"fmt"

	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/raine/telegram-identify-bot/internal/textproc"
)

var (
	ErrNoImage          = errors.New("no image selected")
	ErrNoDescription    = errors.New("image has not been identified yet")
	ErrBusy             = errors.New("a request is already in flight")
	ErrUnknownKeyword   = errors.New("unknown keyword")
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrEmptyDescription = errors.New("model returned an empty description")
)

// State is the position of a conversation in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateReady
	StateLoading
	StateDescribed
	StateAnswering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StateDescribed:
		return "described"
	case StateAnswering:
		return "answering"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome tells what Complete did with a result.
type Outcome int

const (
	// OutcomeApplied means the result was stored in the conversation.
	OutcomeApplied Outcome = iota
	// OutcomeFailed means the request failed and the preceding state was restored.
	OutcomeFailed
	// OutcomeStale means the result belongs to a replaced image or description and was dropped.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeFailed:
		return "failed"
	case OutcomeStale:
		return "stale"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Conversation is the state of one user's conversation about one image.
type Conversation struct {
	state State
	image *media.Image

	// generation changes on every image selection or reset, sequence on
	// every new description.
	generation uint64
	sequence   uint64

	description string
	keywords    []string
	questions   []string
	question    string
	answer      string

	inFlight         bool
	questionsPending bool
}

// New returns an idle conversation.
func New() *Conversation {
	return &Conversation{state: StateIdle}
}

// Snapshot is a read-only copy of a conversation.
type Snapshot struct {
	State            State
	HasImage         bool
	Generation       uint64
	Sequence         uint64
	Description      string
	Keywords         []string
	Questions        []string
	Question         string
	Answer           string
	InFlight         bool
	QuestionsPending bool
}

// Snapshot returns a copy of the current state.
func (c *Conversation) Snapshot() Snapshot {
	return Snapshot{
		State:            c.state,
		HasImage:         c.image != nil,
		Generation:       c.generation,
		Sequence:         c.sequence,
		Description:      c.description,
		Keywords:         append([]string(nil), c.keywords...),
		Questions:        append([]string(nil), c.questions...),
		Question:         c.question,
		Answer:           c.answer,
		InFlight:         c.inFlight,
		QuestionsPending: c.questionsPending,
	}
}

func (c *Conversation) State() State           { return c.state }
func (c *Conversation) Generation() uint64     { return c.generation }
func (c *Conversation) Sequence() uint64       { return c.sequence }
func (c *Conversation) InFlight() bool         { return c.inFlight }
func (c *Conversation) QuestionsPending() bool { return c.questionsPending }

// SelectImage replaces the current image from any state. Everything derived
// from the previous image is cleared and any pending result becomes stale.
func (c *Conversation) SelectImage(img media.Image) uint64 {
	c.clear()
	c.image = &img
	c.state = StateReady
	return c.generation
}

// Reset drops the image and returns to Idle.
func (c *Conversation) Reset() {
	c.clear()
	c.state = StateIdle
}

func (c *Conversation) clear() {
	c.generation++
	c.image = nil
	c.description = ""
	c.keywords = nil
	c.questions = nil
	c.question = ""
	c.answer = ""
	c.inFlight = false
	c.questionsPending = false
}

// BeginIdentify starts an identify call. A non-empty keyword refines the
// current description towards it.
func (c *Conversation) BeginIdentify(keyword string) (*Request, error) {
	if c.image == nil {
		return nil, ErrNoImage
	}
	if c.inFlight {
		return nil, ErrBusy
	}

	payload, err := media.Encode(*c.image)
	if err != nil {
		return nil, err
	}

	c.state = StateLoading
	c.inFlight = true

	return newRequest(KindIdentify, llm.IdentifyPrompt(keyword), &payload, c.generation, c.sequence, keyword, ""), nil
}

// BeginAnswer starts answering question about the current image.
func (c *Conversation) BeginAnswer(question string) (*Request, error) {
	if c.image == nil {
		return nil, ErrNoImage
	}
	if c.description == "" {
		return nil, ErrNoDescription
	}
	if c.inFlight {
		return nil, ErrBusy
	}

	payload, err := media.Encode(*c.image)
	if err != nil {
		return nil, err
	}

	c.state = StateAnswering
	c.inFlight = true

	return newRequest(KindAnswer, llm.AnswerPrompt(question), &payload, c.generation, c.sequence, "", question), nil
}

// BeginQuestions starts generating related questions for the current
// description. It runs alongside identify and answer calls and has its own
// pending flag.
func (c *Conversation) BeginQuestions() (*Request, error) {
	if c.description == "" {
		return nil, ErrNoDescription
	}
	if c.questionsPending {
		return nil, ErrBusy
	}

	c.questionsPending = true

	return newRequest(KindQuestions, llm.RelatedQuestionsPrompt(c.description), nil, c.generation, c.sequence, "", ""), nil
}

// Complete applies a finished request to the conversation.
func (c *Conversation) Complete(res Result) Outcome {
	req := res.Request
	if req == nil || req.generation != c.generation {
		return OutcomeStale
	}

	switch req.Kind {
	case KindIdentify:
		return c.completeIdentify(res)
	case KindAnswer:
		return c.completeAnswer(res)
	case KindQuestions:
		return c.completeQuestions(res)
	default:
		return OutcomeStale
	}
}

func (c *Conversation) completeIdentify(res Result) Outcome {
	c.inFlight = false

	description := ""
	if res.Err == nil {
		description = textproc.Sanitize(res.Text)
	}
	if description == "" {
		c.state = c.restingState()
		return OutcomeFailed
	}

	c.description = description
	c.keywords = textproc.ExtractKeywords(description)
	c.questions = nil
	c.question = ""
	c.answer = ""
	c.questionsPending = false
	c.sequence++
	c.state = StateDescribed
	return OutcomeApplied
}

func (c *Conversation) completeAnswer(res Result) Outcome {
	c.inFlight = false
	c.state = c.restingState()

	if res.Err != nil {
		return OutcomeFailed
	}

	c.question = res.Request.Question
	c.answer = textproc.CleanAnswer(res.Text)
	return OutcomeApplied
}

func (c *Conversation) completeQuestions(res Result) Outcome {
	if res.Request.sequence != c.sequence {
		return OutcomeStale
	}
	c.questionsPending = false

	if res.Err != nil {
		c.questions = []string{}
		return OutcomeFailed
	}

	// An unparseable response degrades to an empty list
	questions, _ := textproc.ParseQuestions(res.Text)
	c.questions = questions
	return OutcomeApplied
}

func (c *Conversation) restingState() State {
	switch {
	case c.description != "":
		return StateDescribed
	case c.image != nil:
		return StateReady
	default:
		return StateIdle
	}
}

// Description returns the current sanitized description.
func (c *Conversation) Description() string {
	return c.description
}

// Keyword returns the keyword at index i of the current keyword set.
func (c *Conversation) Keyword(i int) (string, error) {
	if i < 0 || i >= len(c.keywords) {
		return "", fmt.Errorf("%w: %d", ErrUnknownKeyword, i)
	}
	return c.keywords[i], nil
}

// QuestionAt returns the question at index i of the current question list.
func (c *Conversation) QuestionAt(i int) (string, error) {
	if i < 0 || i >= len(c.questions) {
		return "", fmt.Errorf("%w: %d", ErrUnknownQuestion, i)
	}
	return c.questions[i], nil
}
