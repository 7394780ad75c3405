package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	keywordsPerRow     = 3
	maxQuestionLabel   = 60
	callbackIdentify   = "identify"
	callbackKeyword    = "kw"
	callbackQuestion   = "q"
	questionListFormat = "%d. %s\n"
)

// sectionHeadings are description lines rendered as headings.
var sectionHeadings = []string{"Important information:", "Other Information"}

// renderDescription formats a sanitized description as Markdown.
func renderDescription(description string) string {
	var sb strings.Builder
	sb.WriteString(MsgDescriptionTitle)
	sb.WriteString("\n\n")
	for i, line := range strings.Split(description, "\n") {
		if i > 0 {
			sb.WriteString("\n")
		}
		if isSectionHeading(line) {
			sb.WriteString("\n*" + escapeMarkdown(line) + "*")
			continue
		}
		sb.WriteString(escapeMarkdown(line))
	}
	return sb.String()
}

func isSectionHeading(line string) bool {
	for _, h := range sectionHeadings {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}

// renderQuestions lists the questions with their button numbers. Blank lines
// get no number.
func renderQuestions(questions []string) string {
	var sb strings.Builder
	sb.WriteString(MsgQuestionsTitle)
	sb.WriteString("\n\n")
	n := 0
	for _, q := range questions {
		if strings.TrimSpace(q) == "" {
			continue
		}
		n++
		sb.WriteString(fmt.Sprintf(questionListFormat, n, escapeMarkdown(q)))
	}
	sb.WriteString("\n")
	sb.WriteString(MsgAskOwnQuestion)
	return sb.String()
}

func renderAnswer(question, answer string) string {
	return MsgAnswerTitle + "\n❓ " + escapeMarkdown(question) + "\n\n" + escapeMarkdown(answer)
}

// --- Keyboards ---

// callbackData encodes a button press. Keyword and question buttons also
// carry the description sequence and the item index.
func callbackData(kind string, generation uint64, fields ...uint64) string {
	data := kind + ":" + strconv.FormatUint(generation, 10)
	for _, f := range fields {
		data += ":" + strconv.FormatUint(f, 10)
	}
	return data
}

func makeIdentifyKeyboard(generation uint64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnIdentify, callbackData(callbackIdentify, generation)),
		),
	)
}

// makeKeywordKeyboard returns nil for an empty keyword set.
func makeKeywordKeyboard(generation, sequence uint64, keywords []string) *tgbotapi.InlineKeyboardMarkup {
	if len(keywords) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, kw := range keywords {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(kw, callbackData(callbackKeyword, generation, sequence, uint64(i))))
		if len(row) == keywordsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// makeQuestionKeyboard has one button per non-blank question. The callback
// carries the question's index in the full list.
func makeQuestionKeyboard(generation, sequence uint64, questions []string) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, q := range questions {
		if strings.TrimSpace(q) == "" {
			continue
		}
		label := truncateText(strings.TrimSpace(q), maxQuestionLabel)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(callbackQuestion, generation, sequence, uint64(i))),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// callbackAction is a parsed inline button press.
type callbackAction struct {
	Kind       string
	Generation uint64
	Sequence   uint64 // description sequence, keyword and question buttons only
	Index      int
}

func parseCallbackData(data string) (callbackAction, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return callbackAction{}, fmt.Errorf("malformed callback data %q", data)
	}

	generation, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return callbackAction{}, fmt.Errorf("malformed callback generation %q: %w", data, err)
	}
	action := callbackAction{Kind: parts[0], Generation: generation}

	switch action.Kind {
	case callbackIdentify:
		if len(parts) != 2 {
			return callbackAction{}, fmt.Errorf("malformed callback data %q", data)
		}
	case callbackKeyword, callbackQuestion:
		if len(parts) != 4 {
			return callbackAction{}, fmt.Errorf("malformed callback data %q", data)
		}
		action.Sequence, err = strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed callback sequence %q: %w", data, err)
		}
		action.Index, err = strconv.Atoi(parts[3])
		if err != nil {
			return callbackAction{}, fmt.Errorf("malformed callback index %q: %w", data, err)
		}
	default:
		return callbackAction{}, fmt.Errorf("unknown callback kind %q", action.Kind)
	}

	return action, nil
}
