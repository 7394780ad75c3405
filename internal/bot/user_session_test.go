package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raine/telegram-identify-bot/internal/conversation"
	"github.com/raine/telegram-identify-bot/internal/media"
)

// recordingHandler logs the messages it processes. A message with Text
// "BLOCK" waits on release, "PANIC" panics.
type recordingHandler struct {
	mu      sync.Mutex
	seen    []string
	types   []string
	started chan struct{}
	release chan struct{}
}

func newRecordingHandler() *recordingHandler {
	release := make(chan struct{})
	close(release)
	return &recordingHandler{started: make(chan struct{}, 1), release: release}
}

func (h *recordingHandler) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	h.mu.Lock()
	h.seen = append(h.seen, msg.Text)
	h.types = append(h.types, msg.Type)
	h.mu.Unlock()

	switch msg.Text {
	case "PANIC":
		panic("simulated worker panic")
	case "BLOCK":
		h.started <- struct{}{}
		<-h.release
	}
}

func (h *recordingHandler) getSeen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func (h *recordingHandler) getTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.types...)
}

func createTestSession(id int64, handler MessageHandler) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &UserSession{
		userId:  id,
		inbox:   make(chan SessionMessage, 10),
		ctx:     ctx,
		cancel:  cancel,
		handler: handler,
		conv:    conversation.New(),
	}
	s.StartWorker()
	return s
}

func TestWorker_SequentialProcessing(t *testing.T) {
	handler := newRecordingHandler()
	session := createTestSession(123, handler)
	defer session.Stop()

	for _, txt := range []string{"msg1", "msg2", "msg3"} {
		session.Send(SessionMessage{Text: txt})
	}
	session.SendSync(SessionMessage{Text: "barrier"})

	assert.Equal(t, []string{"msg1", "msg2", "msg3", "barrier"}, handler.getSeen())
}

func TestWorker_PanicRecovery(t *testing.T) {
	handler := newRecordingHandler()
	session := createTestSession(123, handler)
	defer session.Stop()

	session.SendSync(SessionMessage{Text: "PANIC"})
	session.SendSync(SessionMessage{Text: "recovery"})

	assert.Equal(t, []string{"PANIC", "recovery"}, handler.getSeen())
}

func TestWorker_BlockedUserDoesNotBlockOthers(t *testing.T) {
	slow := newRecordingHandler()
	slow.release = make(chan struct{})
	sessionA := createTestSession(1, slow)
	defer sessionA.Stop()

	fast := newRecordingHandler()
	sessionB := createTestSession(2, fast)
	defer sessionB.Stop()

	go sessionA.SendSync(SessionMessage{Text: "BLOCK"})
	select {
	case <-slow.started:
	case <-time.After(time.Second):
		t.Fatal("session A did not start processing")
	}

	sessionB.SendSync(SessionMessage{Text: "fast"})
	assert.Equal(t, []string{"fast"}, fast.getSeen())
	assert.Equal(t, []string{"BLOCK"}, slow.getSeen())

	close(slow.release)
}

func TestWorker_StopDrainsPendingSyncCallers(t *testing.T) {
	handler := newRecordingHandler()
	handler.release = make(chan struct{})
	session := createTestSession(999, handler)

	go session.SendSync(SessionMessage{Text: "BLOCK"})
	<-handler.started

	waiters := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			session.SendSync(SessionMessage{Text: "pending"})
			waiters <- struct{}{}
		}()
	}

	stopped := make(chan struct{})
	go func() {
		session.Stop()
		close(stopped)
	}()
	close(handler.release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out")
	}
	for i := 0; i < 3; i++ {
		select {
		case <-waiters:
		case <-time.After(time.Second):
			t.Fatal("SendSync caller was never released")
		}
	}
}

func TestTouch_ExpiryPostsMessage(t *testing.T) {
	handler := newRecordingHandler()
	session := createTestSession(5, handler)
	defer session.Stop()
	session.idleTimeout = 10 * time.Millisecond

	session.touch()

	require.Eventually(t, func() bool {
		for _, typ := range handler.getTypes() {
			if typ == "conversation_expired" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestTouch_DisabledWithoutTimeout(t *testing.T) {
	session := &UserSession{userId: 5, conv: conversation.New()}
	session.touch()
	assert.Nil(t, session.idleTimer)
}

func TestTouch_ReplacesTimer(t *testing.T) {
	session := &UserSession{userId: 5, conv: conversation.New(), idleTimeout: time.Hour}
	session.touch()
	first := session.idleTimer
	session.touch()
	defer session.stopIdleTimer()

	require.NotNil(t, session.idleTimer)
	assert.NotSame(t, first, session.idleTimer)
	assert.False(t, first.Stop(), "replaced timer should already be stopped")
}

func TestReset_ClearsConversationAndTimers(t *testing.T) {
	session := &UserSession{userId: 5, conv: conversation.New(), idleTimeout: time.Hour}
	img, err := media.FromBytes([]byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg")
	require.NoError(t, err)
	generation := session.conv.SelectImage(img)
	session.touch()

	typingStopped := false
	session.stopTyping = func() { typingStopped = true }

	session.reset()

	assert.Equal(t, conversation.StateIdle, session.conv.State())
	assert.Greater(t, session.conv.Generation(), generation)
	assert.Nil(t, session.idleTimer)
	assert.Nil(t, session.stopTyping)
	assert.True(t, typingStopped)
}

func TestReply_TruncatesLongMarkdown(t *testing.T) {
	tg := new(botApiMock)
	session := &UserSession{userId: 5, sender: tg, conv: conversation.New()}

	// The limit falls inside the bold entity
	text := strings.Repeat("a", maxMessageLength-10) + " *" + strings.Repeat("b", 20) + "*"
	var sent string
	tg.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(0).(tgbotapi.MessageConfig).Text
	}).Return(tgbotapi.Message{MessageID: 1}, nil).Once()

	session.reply(text)

	tg.AssertExpectations(t)
	assert.LessOrEqual(t, utf8.RuneCountInString(sent), maxMessageLength)
	assert.Equal(t, strings.Repeat("a", maxMessageLength-10)+" …", sent)
	assert.NotContains(t, sent, "*")
}
