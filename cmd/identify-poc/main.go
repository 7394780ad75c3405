package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-identify-bot/internal/config"
	"github.com/raine/telegram-identify-bot/internal/conversation"
	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/media"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [keyword-number] [question]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  MODEL_PROVIDER - gemini (default) or openai\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required for Gemini\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY - Required for OpenAI\n")
		fmt.Fprintf(os.Stderr, "  MODEL_NAME     - Overrides the provider's default model\n")
		os.Exit(1)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fatal("Invalid config: %v", err)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fatal("Failed to open image: %v", err)
	}
	img, err := media.Read(f, "")
	f.Close()
	if err != nil {
		fatal("Failed to read image: %v", err)
	}

	ctx := context.Background()
	gen := newGenerator(ctx, cfg)

	conv := conversation.New()
	conv.SelectImage(img)
	fmt.Printf("Image:       %s (%s, %d bytes)\n\n", os.Args[1], img.MIMEType, len(img.Data))

	identify(ctx, conv, gen, "")

	if len(os.Args) >= 3 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fatal("Keyword number must be an integer: %v", err)
		}
		keyword, err := conv.Keyword(n - 1)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(strings.Repeat("-", 50))
		fmt.Printf("Refining on: %s\n\n", keyword)
		identify(ctx, conv, gen, keyword)
	}

	if len(os.Args) >= 4 {
		question := strings.Join(os.Args[3:], " ")
		req, err := conv.BeginAnswer(question)
		if err != nil {
			fatal("%v", err)
		}
		res := req.Run(ctx, gen)
		if conv.Complete(res) != conversation.OutcomeApplied {
			fatal("Answer failed: %v", res.Err)
		}
		fmt.Println(strings.Repeat("-", 50))
		fmt.Printf("Question:    %s\n", question)
		fmt.Printf("Answer:\n%s\n", conv.Snapshot().Answer)
		printUsage(res)
	}
}

func identify(ctx context.Context, conv *conversation.Conversation, gen llm.Generator, keyword string) {
	req, err := conv.BeginIdentify(keyword)
	if err != nil {
		fatal("%v", err)
	}
	res := req.Run(ctx, gen)
	if conv.Complete(res) != conversation.OutcomeApplied {
		fatal("Identify failed: %v", res.Err)
	}

	snap := conv.Snapshot()
	fmt.Printf("Description:\n%s\n\n", snap.Description)
	for i, kw := range snap.Keywords {
		fmt.Printf("Keyword %d:   %s\n", i+1, kw)
	}
	printUsage(res)

	req, err = conv.BeginQuestions()
	if err != nil {
		fatal("%v", err)
	}
	res = req.Run(ctx, gen)
	if conv.Complete(res) != conversation.OutcomeApplied {
		fmt.Printf("Related questions failed: %v\n\n", res.Err)
		return
	}
	fmt.Println("Related questions:")
	for i, q := range conv.Snapshot().Questions {
		fmt.Printf("  %d. %s\n", i+1, q)
	}
	printUsage(res)
}

func newGenerator(ctx context.Context, cfg *config.Config) llm.Generator {
	if cfg.APIKey() == "" {
		fatal("%s is not set", cfg.APIKeyVar())
	}
	if cfg.ModelProvider == config.ProviderOpenAI {
		return llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.ModelName)
	}
	client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		fatal("Error creating Gemini client: %v", err)
	}
	return llm.NewGeminiGenerator(client, cfg.ModelName)
}

func printUsage(res conversation.Result) {
	fmt.Println()
	fmt.Printf("Tokens:      %d in / %d out / %d total\n",
		res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens)
	fmt.Printf("Cost:        $%.6f\n\n", res.Usage.CostUSD)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
