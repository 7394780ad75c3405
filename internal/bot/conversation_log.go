package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Per-user conversation transcripts. Disabled until InitConversationLog is
// called with a directory. Transcripts are written only; sessions never
// restore history from them.
var (
	conversationLogMu  sync.Mutex
	conversationLogDir string
)

// InitConversationLog sets the directory for conversation logs. An empty dir
// disables them.
func InitConversationLog(dir string) error {
	conversationLogMu.Lock()
	defer conversationLogMu.Unlock()
	conversationLogDir = dir
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// getLogPath returns the log file path for a user, or "" when logging is disabled.
func getLogPath(userID int64) string {
	conversationLogMu.Lock()
	defer conversationLogMu.Unlock()
	if conversationLogDir == "" {
		return ""
	}
	return filepath.Join(conversationLogDir, fmt.Sprintf("conversation_%d.log", userID))
}

// StartConversationLog truncates the log file for a user, starting a fresh log.
func StartConversationLog(userID int64) {
	logPath := getLogPath(userID)
	if logPath == "" {
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to start conversation log")
		return
	}
	defer f.Close()

	header := fmt.Sprintf("=== Conversation Log ===\nUser: %d\nStarted: %s\n\n",
		userID, time.Now().Format("2006-01-02 15:04:05"))
	f.WriteString(header)
}

// appendLog writes a log entry to the user's conversation log file.
func appendLog(userID int64, prefix, msg string) {
	logPath := getLogPath(userID)
	if logPath == "" {
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to write conversation log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s %s\n", timestamp, prefix, msg)
	f.WriteString(line)
}

// LogUser logs a user message/action.
func LogUser(userID int64, format string, args ...any) {
	appendLog(userID, "USER    ", fmt.Sprintf(format, args...))
}

// LogBot logs a bot response.
func LogBot(userID int64, format string, args ...any) {
	appendLog(userID, "BOT     ", fmt.Sprintf(format, args...))
}

// LogState logs state transitions.
func LogState(userID int64, format string, args ...any) {
	appendLog(userID, "STATE   ", fmt.Sprintf(format, args...))
}

// LogError logs errors.
func LogError(userID int64, format string, args ...any) {
	appendLog(userID, "ERROR   ", fmt.Sprintf(format, args...))
}

// LogCallback logs callback events.
func LogCallback(userID int64, format string, args ...any) {
	appendLog(userID, "CALLBACK", fmt.Sprintf(format, args...))
}

// LogLLM logs model interactions.
func LogLLM(userID int64, format string, args ...any) {
	appendLog(userID, "LLM     ", fmt.Sprintf(format, args...))
}
