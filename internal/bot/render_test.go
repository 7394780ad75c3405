package bot

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    callbackAction
		wantErr bool
	}{
		{"identify", "identify:3", callbackAction{Kind: callbackIdentify, Generation: 3}, false},
		{"keyword", "kw:3:5:2", callbackAction{Kind: callbackKeyword, Generation: 3, Sequence: 5, Index: 2}, false},
		{"question", "q:7:1:0", callbackAction{Kind: callbackQuestion, Generation: 7, Sequence: 1}, false},
		{"missing generation", "identify", callbackAction{}, true},
		{"bad generation", "kw:x:1:1", callbackAction{}, true},
		{"missing index", "kw:3:1", callbackAction{}, true},
		{"missing sequence", "q:3:0", callbackAction{}, true},
		{"bad sequence", "kw:3:y:0", callbackAction{}, true},
		{"bad index", "q:3:1:first", callbackAction{}, true},
		{"extra part on identify", "identify:3:1", callbackAction{}, true},
		{"unknown kind", "publish:3", callbackAction{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallbackData(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	got, err := parseCallbackData(callbackData(callbackKeyword, 12, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, callbackAction{Kind: callbackKeyword, Generation: 12, Sequence: 4, Index: 5}, got)
}

func TestRenderDescription(t *testing.T) {
	got := renderDescription("Eiffel Tower\n\nImportant information: Built in 1889.\nHeight 330 m")

	assert.Equal(t,
		"*Image information*\n\nEiffel Tower\n\n\n*Important information: Built in 1889.*\nHeight 330 m",
		got)
}

func TestRenderDescription_EscapesMarkdown(t *testing.T) {
	got := renderDescription("snake_case [draft]")
	assert.Contains(t, got, `snake\_case \[draft]`)
}

func TestRenderQuestions_SkipsBlankLines(t *testing.T) {
	got := renderQuestions([]string{"Who built it?", "", "When?"})

	assert.Contains(t, got, "1. Who built it?\n2. When?\n")
	assert.True(t, strings.HasPrefix(got, MsgQuestionsTitle))
	assert.True(t, strings.HasSuffix(got, MsgAskOwnQuestion))
}

func TestRenderAnswer(t *testing.T) {
	got := renderAnswer("Who built *it*?", "Gustave Eiffel")
	assert.Equal(t, "*Answer*\n❓ Who built \\*it\\*?\n\nGustave Eiffel", got)
}

func TestMakeKeywordKeyboard(t *testing.T) {
	assert.Nil(t, makeKeywordKeyboard(1, 1, nil))

	keyboard := makeKeywordKeyboard(4, 2, []string{"Eiffel", "Tower", "Paris", "France"})
	require.NotNil(t, keyboard)
	require.Len(t, keyboard.InlineKeyboard, 2)
	assert.Len(t, keyboard.InlineKeyboard[0], keywordsPerRow)
	assert.Len(t, keyboard.InlineKeyboard[1], 1)

	last := keyboard.InlineKeyboard[1][0]
	assert.Equal(t, "France", last.Text)
	assert.Equal(t, "kw:4:2:3", *last.CallbackData)
}

func TestMakeQuestionKeyboard_KeepsOriginalIndexes(t *testing.T) {
	assert.Nil(t, makeQuestionKeyboard(1, 1, []string{"", "  "}))

	long := strings.Repeat("a", 80) + "?"
	keyboard := makeQuestionKeyboard(2, 3, []string{"First?", "", long})
	require.NotNil(t, keyboard)
	require.Len(t, keyboard.InlineKeyboard, 2)

	assert.Equal(t, "q:2:3:0", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "q:2:3:2", *keyboard.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, maxQuestionLabel, len([]rune(keyboard.InlineKeyboard[1][0].Text)))
}

func TestMakeIdentifyKeyboard(t *testing.T) {
	keyboard := makeIdentifyKeyboard(9)
	assert.Equal(t, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(BtnIdentify, "identify:9"),
	}, keyboard.InlineKeyboard[0])
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, "abcd…", truncateText("abcdefgh", 5))
	assert.Equal(t, "ääää…", truncateText("ääääääää", 5))
}

func TestTruncateMarkdown(t *testing.T) {
	assert.Equal(t, "short *bold*", truncateMarkdown("short *bold*", 20))
	assert.Equal(t, "ab…", truncateMarkdown(`ab\*cd`, 4), "dangling backslash is dropped")
	assert.Equal(t, `a\*b…`, truncateMarkdown(`a\*bcdef`, 5))
	assert.Equal(t, "x …", truncateMarkdown("x *bold text*", 8), "open entity is cut off")
	assert.Equal(t, "*a* b…", truncateMarkdown("*a* bcdefg", 6))
	assert.Equal(t, "`a*b` …", truncateMarkdown("`a*b` cdefgh", 7), "code spans ignore other markers")
	assert.Equal(t, "snake\\_case …", truncateMarkdown(`snake\_case words here`, 13))
}

func TestParseCommand(t *testing.T) {
	command, args := parseCommand("/identify@identify_bot now")
	assert.Equal(t, "/identify", command)
	assert.Equal(t, []string{"now"}, args)

	command, args = parseCommand("/reset")
	assert.Equal(t, "/reset", command)
	assert.Empty(t, args)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "500 B", formatBytes(500))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "10.0 MiB", formatBytes(10*1024*1024))
}

func TestFormatReplyText(t *testing.T) {
	got := formatReplyText(MsgUsage, 3, 1, 100, 20, 0.0125)
	assert.Equal(t, "*Model usage*\nCalls: 3 (1 from cache)\nTokens: 100 in / 20 out\nCost: $0.0125", got)
}
