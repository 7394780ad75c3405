package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/dedent"
)

// maxMessageLength is Telegram's limit for message text.
const maxMessageLength = 4096

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func parseCommand(s string) (string, []string) {
	parts := strings.Split(s, " ")
	// Commands in groups may carry the bot name, e.g. /identify@my_bot
	command, _, _ := strings.Cut(parts[0], "@")
	return command, parts[1:]
}

// escapeMarkdown escapes special characters for Telegram Markdown V1
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}

// truncateText cuts s to at most limit runes, marking the cut with an ellipsis.
func truncateText(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// truncateMarkdown is truncateText for Markdown V1 text. The cut never
// splits an escape sequence or leaves a bold, italic or code entity open.
func truncateMarkdown(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := []rune(s)[:limit-1]

	open := -1
	var openChar rune
	for i := 0; i < len(cut); i++ {
		r := cut[i]
		if open >= 0 && openChar == '`' {
			if r == '`' {
				open = -1
			}
			continue
		}
		switch r {
		case '\\':
			if i == len(cut)-1 {
				cut = cut[:i]
			} else {
				i++
			}
		case '*', '_', '`':
			if open < 0 {
				open, openChar = i, r
			} else if r == openChar {
				open = -1
			}
		}
	}
	if open >= 0 {
		cut = cut[:open]
	}
	return string(cut) + "…"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
