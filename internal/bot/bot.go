package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-identify-bot/internal/conversation"
	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/storage"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options configures a Bot. Zero values fall back to defaults.
type Options struct {
	ModelName          string
	RequestTimeout     time.Duration
	SessionIdleTimeout time.Duration // 0 disables expiry
	MaxImageBytes      int64
	AllowedUsers       []int64          // empty allows everyone
	Usage              storage.UsageLog // optional
}

const defaultRequestTimeout = 60 * time.Second

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   BotState
	opts    Options
	allowed map[int64]struct{}

	images *ImageHandler
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, generator llm.Generator, opts Options) *Bot {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	downloader := NewImageDownloader()
	if opts.MaxImageBytes > 0 {
		downloader.WithMaxSize(opts.MaxImageBytes)
	}

	bot := &Bot{
		tg:   tg,
		opts: opts,
	}
	if len(opts.AllowedUsers) > 0 {
		bot.allowed = make(map[int64]struct{}, len(opts.AllowedUsers))
		for _, id := range opts.AllowedUsers {
			bot.allowed[id] = struct{}{}
		}
	}

	bot.state = bot.NewBotState()
	bot.images = NewImageHandler(tg, generator, downloader, opts)

	return bot
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) isAllowed(userId int64) bool {
	if b.allowed == nil {
		return true
	}
	_, ok := b.allowed[userId]
	return ok
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64

	// Determine user ID from the update
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		userId = update.CallbackQuery.From.ID
	} else if update.Message != nil && update.Message.From != nil {
		userId = update.Message.From.ID
	} else {
		return
	}

	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if !b.isAllowed(userId) {
		log.Debug().Int64("userId", userId).Msg("dropping update from user not in allow list")
		return
	}

	session := b.state.getUserSession(userId)

	// Helper to send sync or async based on flag
	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	if update.CallbackQuery != nil {
		send(SessionMessage{
			Type:          "callback",
			Ctx:           ctx,
			CallbackQuery: update.CallbackQuery,
		})
		return
	}

	message := update.Message
	log.Info().Int64("userId", userId).Str("text", message.Text).Str("caption", message.Caption).Msg("got message")

	if len(message.Photo) > 0 || message.Document != nil {
		send(SessionMessage{
			Type:    "image",
			Ctx:     ctx,
			Message: message,
		})
		return
	}

	send(SessionMessage{
		Type:    "text",
		Ctx:     ctx,
		Message: message,
		Text:    message.Text,
	})
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
// No mutex locking is needed here since only one goroutine accesses session state.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		session.touch()
		b.handleCallbackQuery(ctx, session, msg.CallbackQuery)
	case "image":
		session.touch()
		b.images.HandleImage(ctx, session, msg.Message)
	case "text":
		session.touch()
		b.handleTextMessage(ctx, session, msg.Text)
	case "request_complete":
		b.images.HandleRequestComplete(ctx, session, msg.Result)
	case "conversation_expired":
		b.handleConversationExpired(session, msg.ExpiredTimer)
	}
}

// handleTextMessage processes text messages.
// Called from session worker - no locking needed.
func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	LogUser(session.userId, "%s", text)

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, session, text)
		return
	}

	// Free text is a question about the image once it has been described
	switch session.conv.State() {
	case conversation.StateIdle:
		session.reply(MsgStartPrompt)
	case conversation.StateReady:
		session.reply(MsgNoDescription)
	default:
		b.images.StartAnswer(ctx, session, text)
	}
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, text string) {
	command, _ := parseCommand(text)
	switch command {
	case "/start":
		session.reply(MsgStartPrompt)
	case "/help":
		session.reply(MsgHelp)
	case "/identify":
		b.images.StartIdentify(ctx, session, "")
	case "/reset":
		session.reset()
		LogState(session.userId, "reset")
		session.replyAndRemoveCustomKeyboard(MsgReset)
	case "/usage":
		b.handleUsageCommand(session)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgHelp)
	}
}

func (b *Bot) handleUsageCommand(session *UserSession) {
	if b.opts.Usage == nil {
		session.reply(MsgUsageNotAvailable)
		return
	}
	totals, err := b.opts.Usage.UsageTotals(session.userId)
	if err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgUsage, totals.Calls, totals.CachedCalls, totals.InputTokens, totals.OutputTokens, totals.CostUSD)
}

// handleCallbackQuery handles inline keyboard button presses.
// Called from session worker - no locking needed.
func (b *Bot) handleCallbackQuery(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	callback := tgbotapi.NewCallback(query.ID, "")
	b.tg.Request(callback)

	LogCallback(session.userId, "%s", query.Data)

	action, err := parseCallbackData(query.Data)
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("ignoring callback")
		return
	}

	// Buttons of an earlier image must not act on the current one
	if action.Generation != session.conv.Generation() {
		session.reply(MsgStaleButton)
		return
	}

	// Keyword and question buttons of a replaced description must not pick
	// items of the current one
	if action.Kind != callbackIdentify && action.Sequence != session.conv.Sequence() {
		session.reply(MsgStaleButton)
		return
	}

	switch action.Kind {
	case callbackIdentify:
		b.images.StartIdentify(ctx, session, "")
	case callbackKeyword:
		keyword, err := session.conv.Keyword(action.Index)
		if err != nil {
			session.reply(MsgStaleButton)
			return
		}
		b.images.StartIdentify(ctx, session, keyword)
	case callbackQuestion:
		question, err := session.conv.QuestionAt(action.Index)
		if err != nil {
			session.reply(MsgStaleButton)
			return
		}
		b.images.StartAnswer(ctx, session, question)
	}
}

// handleConversationExpired clears the conversation when the inactivity
// timer that fired is still the current one.
func (b *Bot) handleConversationExpired(session *UserSession, timer *time.Timer) {
	if timer == nil || timer != session.idleTimer {
		return
	}
	session.idleTimer = nil

	if session.conv.State() == conversation.StateIdle {
		return
	}

	log.Info().Int64("userId", session.userId).Msg("conversation expired")
	LogState(session.userId, "expired")
	session.reset()
	session.reply(MsgConversationExpired)
}

// Shutdown stops all session workers and waits for model calls in flight.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
	b.images.Wait()
}
