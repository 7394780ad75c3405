package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok!`
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgStartPrompt   = "Send me a photo and I will tell you what it shows."
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgReset         = "Ok! The conversation was cleared. Send a new photo to start again."
	MsgBusy          = "Still working on the previous request, please wait a moment."
	MsgStaleButton   = "That button belongs to an earlier image."
)

const MsgHelp = `
	*Image identification bot*

	1. Send a photo (or an image file)
	2. Tap *Identify* or use /identify
	3. Tap a keyword to refine the description
	4. Tap a related question, or type your own, to get an answer

	/identify - Identify the current image
	/reset - Forget the current image
	/usage - Show your model usage
	/version - Show version information
`

// =============================================================================
// Image messages
// =============================================================================

const (
	MsgImageReceived       = "Got the image. Tap *Identify* to find out what it shows."
	MsgNoImage             = "Send a photo first."
	MsgNotAnImage          = "That file is not an image. Send a photo or an image file."
	MsgImageTooLarge       = "The image is too large (max %s)."
	MsgDownloadFailed      = "Could not download the image: %s"
	MsgImageUnreadable     = "Could not read the image: %s"
	MsgConversationExpired = "The conversation expired due to inactivity. Send a new photo to start again."
)

// =============================================================================
// Identify messages
// =============================================================================

const (
	MsgDescriptionTitle   = "*Image information*"
	MsgRefineHint         = "_Tap a keyword to focus the description on it._"
	MsgRefining           = "Focusing on *%s*..."
	MsgIdentifyFailed     = "Could not identify the image: %s"
	MsgModelNotConfigured = "The image model is not configured. Ask the bot owner to set an API key."
)

// =============================================================================
// Question and answer messages
// =============================================================================

const (
	MsgQuestionsTitle  = "*Related questions*"
	MsgQuestionsFailed = "Could not generate related questions: %s"
	MsgNoQuestions     = "No related questions this time."
	MsgNoDescription   = "Identify the image first with /identify."
	MsgAnswerTitle     = "*Answer*"
	MsgAnswerFailed    = "Could not answer the question: %s"
	MsgAskOwnQuestion  = "_Tap a question, or send your own question as a message._"
)

// =============================================================================
// Usage messages
// =============================================================================

const (
	MsgUsageNotAvailable = "Usage statistics are not enabled."
	MsgUsage             = `
		*Model usage*
		Calls: %d (%d from cache)
		Tokens: %d in / %d out
		Cost: $%.4f
	`
)

// =============================================================================
// Button labels
// =============================================================================

const (
	BtnIdentify = "🔎 Identify"
)
