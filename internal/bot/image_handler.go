package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-identify-bot/internal/conversation"
	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/media"
	"github.com/raine/telegram-identify-bot/internal/storage"
)

// telegramPhotoMIMEType is the type of compressed Telegram photos.
const telegramPhotoMIMEType = "image/jpeg"

// ImageHandler handles image uploads and the model calls made about them.
type ImageHandler struct {
	tg         BotAPI
	generator  llm.Generator
	downloader *ImageDownloader
	opts       Options

	// Model calls in flight, across all sessions
	requests sync.WaitGroup
}

// NewImageHandler creates a new image handler.
func NewImageHandler(tg BotAPI, generator llm.Generator, downloader *ImageDownloader, opts Options) *ImageHandler {
	return &ImageHandler{
		tg:         tg,
		generator:  generator,
		downloader: downloader,
		opts:       opts,
	}
}

// Wait blocks until every model call in flight has posted its result.
func (h *ImageHandler) Wait() {
	h.requests.Wait()
}

// HandleImage downloads a photo or image document and makes it the
// conversation's current image.
// Called from session worker - no locking needed.
func (h *ImageHandler) HandleImage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	var fileID, mimeType string
	var fileSize int

	switch {
	case len(message.Photo) > 0:
		// Telegram sends several sizes, the last one is the largest
		photo := message.Photo[len(message.Photo)-1]
		fileID, mimeType, fileSize = photo.FileID, telegramPhotoMIMEType, photo.FileSize
	case message.Document != nil:
		doc := message.Document
		if !strings.HasPrefix(doc.MimeType, "image/") {
			session.reply(MsgNotAnImage)
			return
		}
		fileID, mimeType, fileSize = doc.FileID, doc.MimeType, doc.FileSize
	default:
		return
	}

	maxSize := h.downloader.MaxSize()
	if int64(fileSize) > maxSize {
		session.reply(MsgImageTooLarge, formatBytes(maxSize))
		return
	}

	data, err := h.downloader.DownloadFromTelegramFileID(ctx, h.tg.GetFileDirectURL, fileID)
	if err != nil {
		var tooLarge *ImageTooLargeError
		if errors.As(err, &tooLarge) {
			session.reply(MsgImageTooLarge, formatBytes(tooLarge.Limit))
			return
		}
		downloadErr := &media.EncodingError{Op: "download", Err: err}
		log.Error().Err(downloadErr).Int64("userId", session.userId).Str("fileID", fileID).Msg("image download failed")
		LogError(session.userId, "%v", downloadErr)
		session.reply(MsgDownloadFailed, escapeMarkdown(err.Error()))
		return
	}

	img, err := media.FromBytes(data, mimeType)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to read image")
		session.reply(MsgImageUnreadable, escapeMarkdown(err.Error()))
		return
	}

	session.stopTypingLoop()
	generation := session.conv.SelectImage(img)

	StartConversationLog(session.userId)
	LogUser(session.userId, "sent image (%s, %d bytes)", img.MIMEType, len(img.Data))
	LogState(session.userId, "ready (generation %d)", generation)
	log.Info().
		Int64("userId", session.userId).
		Str("mimeType", img.MIMEType).
		Int("bytes", len(img.Data)).
		Uint64("generation", generation).
		Msg("image selected")

	msg := tgbotapi.NewMessage(session.userId, MsgImageReceived)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = makeIdentifyKeyboard(generation)
	session.replyWithMessage(msg)
}

// StartIdentify identifies the current image. A non-empty keyword refines
// the existing description towards it.
// Called from session worker - no locking needed.
func (h *ImageHandler) StartIdentify(ctx context.Context, session *UserSession, keyword string) {
	req, err := session.conv.BeginIdentify(keyword)
	if err != nil {
		h.replyBeginError(session, err)
		return
	}

	LogState(session.userId, "loading")
	LogLLM(session.userId, "identify: %s", req.Prompt)

	if keyword != "" {
		session.reply(MsgRefining, escapeMarkdown(keyword))
	}
	h.run(ctx, session, req, true)
}

// StartAnswer asks the model a question about the current image.
// Called from session worker - no locking needed.
func (h *ImageHandler) StartAnswer(ctx context.Context, session *UserSession, question string) {
	req, err := session.conv.BeginAnswer(question)
	if err != nil {
		h.replyBeginError(session, err)
		return
	}

	LogState(session.userId, "answering")
	LogLLM(session.userId, "answer: %s", req.Prompt)
	h.run(ctx, session, req, true)
}

func (h *ImageHandler) startQuestions(ctx context.Context, session *UserSession) {
	req, err := session.conv.BeginQuestions()
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("could not start related questions")
		return
	}

	LogLLM(session.userId, "questions: %s", req.Prompt)
	h.run(ctx, session, req, false)
}

func (h *ImageHandler) replyBeginError(session *UserSession, err error) {
	var encErr *media.EncodingError
	switch {
	case errors.Is(err, conversation.ErrNoImage):
		session.reply(MsgNoImage)
	case errors.Is(err, conversation.ErrNoDescription):
		session.reply(MsgNoDescription)
	case errors.Is(err, conversation.ErrBusy):
		session.reply(MsgBusy)
	case errors.As(err, &encErr):
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to encode image")
		session.reply(MsgImageUnreadable, escapeMarkdown(err.Error()))
	default:
		session.replyWithError(err)
	}
}

// run performs the model call in its own goroutine and posts the result
// back to the session worker as a request_complete message.
func (h *ImageHandler) run(ctx context.Context, session *UserSession, req *conversation.Request, showTyping bool) {
	if showTyping {
		session.stopTypingLoop()
		typingCtx, stop := context.WithCancel(ctx)
		session.stopTyping = stop
		go session.startTypingLoop(typingCtx)
	}

	h.requests.Add(1)
	go func() {
		defer h.requests.Done()

		reqCtx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()

		start := time.Now()
		res := req.Run(reqCtx, h.generator)
		log.Info().
			Int64("userId", session.userId).
			Str("requestId", req.ID).
			Str("kind", req.Kind.String()).
			Bool("cached", res.Cached).
			Dur("duration", time.Since(start)).
			Err(res.Err).
			Msg("model request finished")

		session.Send(SessionMessage{
			Type:   "request_complete",
			Ctx:    ctx,
			Result: &res,
		})
	}()
}

// HandleRequestComplete applies a finished model call and shows the outcome.
// Called from session worker - no locking needed.
func (h *ImageHandler) HandleRequestComplete(ctx context.Context, session *UserSession, res *conversation.Result) {
	if res == nil || res.Request == nil {
		return
	}
	req := res.Request

	h.recordUsage(session, res)

	outcome := session.conv.Complete(*res)
	log.Debug().
		Int64("userId", session.userId).
		Str("requestId", req.ID).
		Str("kind", req.Kind.String()).
		Str("outcome", outcome.String()).
		Msg("applied model result")

	if outcome == conversation.OutcomeStale {
		LogState(session.userId, "discarded stale %s result", req.Kind)
		return
	}
	if req.Kind != conversation.KindQuestions {
		session.stopTypingLoop()
	}

	if outcome == conversation.OutcomeFailed {
		LogError(session.userId, "%s failed: %v", req.Kind, res.Err)
		h.replyFailure(session, req.Kind, res.Err)
		return
	}

	LogLLM(session.userId, "%s response: %s", req.Kind, res.Text)
	LogState(session.userId, "%s", session.conv.State())

	snap := session.conv.Snapshot()
	switch req.Kind {
	case conversation.KindIdentify:
		text := renderDescription(snap.Description)
		keyboard := makeKeywordKeyboard(snap.Generation, snap.Sequence, snap.Keywords)
		if keyboard != nil {
			text += "\n\n" + MsgRefineHint
		}
		msg := tgbotapi.NewMessage(session.userId, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		session.replyWithMessage(msg)

		h.startQuestions(ctx, session)

	case conversation.KindQuestions:
		keyboard := makeQuestionKeyboard(snap.Generation, snap.Sequence, snap.Questions)
		if keyboard == nil {
			session.reply(MsgNoQuestions)
			return
		}
		msg := tgbotapi.NewMessage(session.userId, renderQuestions(snap.Questions))
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.ReplyMarkup = *keyboard
		session.replyWithMessage(msg)

	case conversation.KindAnswer:
		msg := tgbotapi.NewMessage(session.userId, renderAnswer(snap.Question, snap.Answer))
		msg.ParseMode = tgbotapi.ModeMarkdown
		session.replyWithMessage(msg)
	}
}

func (h *ImageHandler) replyFailure(session *UserSession, kind conversation.Kind, err error) {
	if err == nil {
		err = conversation.ErrEmptyDescription
	}
	log.Error().Err(err).Int64("userId", session.userId).Str("kind", kind.String()).Msg("model request failed")

	if errors.Is(err, llm.ErrMissingAPIKey) {
		session.reply(MsgModelNotConfigured)
		return
	}

	reason := escapeMarkdown(err.Error())
	switch kind {
	case conversation.KindIdentify:
		session.reply(MsgIdentifyFailed, reason)
	case conversation.KindQuestions:
		session.reply(MsgQuestionsFailed, reason)
	case conversation.KindAnswer:
		session.reply(MsgAnswerFailed, reason)
	}
}

func (h *ImageHandler) recordUsage(session *UserSession, res *conversation.Result) {
	if h.opts.Usage == nil || res.Err != nil {
		return
	}
	err := h.opts.Usage.RecordUsage(&storage.UsageEntry{
		TelegramID:   session.userId,
		Kind:         res.Request.Kind.String(),
		Model:        h.opts.ModelName,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		CostUSD:      res.Usage.CostUSD,
		Cached:       res.Cached,
	})
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to record usage")
	}
}
