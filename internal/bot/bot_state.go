package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-identify-bot/internal/conversation"
)

type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (bs *BotState) newUserSession(userId int64) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	session := &UserSession{
		userId:      userId,
		sender:      bs.bot.tg,
		inbox:       make(chan SessionMessage, 10), // Buffered to avoid blocking
		ctx:         ctx,
		cancel:      cancel,
		conv:        conversation.New(),
		idleTimeout: bs.bot.opts.SessionIdleTimeout,
	}
	log.Info().Int64("userId", userId).Msg("new user session created")
	return session
}

func (bs *BotState) getUserSession(userId int64) *UserSession {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if session, ok := bs.sessions[userId]; ok {
		return session
	}
	session := bs.newUserSession(userId)
	// Set the bot as the message handler and start the worker
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session
	return session
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// Shutdown stops all session workers gracefully.
func (bs *BotState) Shutdown() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	// Stop all workers (outside the lock to avoid blocking)
	for _, session := range sessions {
		session.Stop()
	}
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
