package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/telegram-identify-bot/internal/bot"
	"github.com/raine/telegram-identify-bot/internal/config"
	"github.com/raine/telegram-identify-bot/internal/llm"
	"github.com/raine/telegram-identify-bot/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing config.env file
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		config.FatalWithWait("%v", err)
	}

	// Check if required config is missing
	if missing := cfg.Missing(); len(missing) > 0 {
		if config.IsInteractiveTerminal() {
			// Interactive terminal - run setup wizard
			if !config.RunSetupWizard() {
				config.WaitOnWindows()
				os.Exit(1)
			}
			if cfg, err = config.Load(); err != nil {
				config.FatalWithWait("%v", err)
			}
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it)
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd || cfg.LogFile == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			config.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", cfg.LogFile).Msg("logging to file")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		config.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	if err := bot.InitConversationLog(cfg.ConversationLogDir); err != nil {
		log.Warn().Err(err).Msg("failed to initialize conversation log")
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	generator, modelName := newGenerator(ctx, cfg)

	opts := bot.Options{
		ModelName:          modelName,
		RequestTimeout:     cfg.RequestTimeout,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		MaxImageBytes:      cfg.MaxImageBytes,
		AllowedUsers:       cfg.AllowedUserIDs,
	}

	if cfg.CacheDBPath != "" {
		store, err := storage.NewSQLiteStore(cfg.CacheDBPath)
		if err != nil {
			config.FatalWithWait("failed to initialize cache store: %v", err)
		}
		defer store.Close()

		generator = llm.NewCachedGenerator(generator, modelName, store)
		opts.Usage = store
		log.Info().Str("dbPath", cfg.CacheDBPath).Msg("response caching enabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runBot(ctx, tg, generator, opts)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// newGenerator creates the single model client of the process. Without an
// API key the bot still starts and every model call reports the missing key.
func newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, string) {
	if cfg.APIKey() == "" {
		log.Warn().Str("provider", cfg.ModelProvider).Msgf("%s is not set, model calls will fail", cfg.APIKeyVar())
	}

	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		gen := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.ModelName)
		log.Info().Str("model", gen.Model()).Msg("openai generator initialized")
		return gen, gen.Model()
	default:
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil && cfg.GeminiAPIKey != "" {
			config.FatalWithWait("failed to initialize gemini client: %v", err)
		}
		gen := llm.NewGeminiGenerator(client, cfg.ModelName)
		log.Info().Str("model", gen.Model()).Msg("gemini generator initialized")
		return gen, gen.Model()
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, generator llm.Generator, opts bot.Options) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	b := bot.NewBot(tg, generator, opts)
	defer b.Shutdown()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
