package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// envFileOrder is the order variables are written to config.env.
var envFileOrder = []string{"BOT_TOKEN", "MODEL_PROVIDER", "GEMINI_API_KEY", "OPENAI_API_KEY", "ALLOWED_USER_IDS"}

// IsInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// keyValidator checks credentials against the remote APIs.
type keyValidator struct {
	client      *resty.Client
	telegramURL string
	geminiURL   string
	openAIURL   string
}

func newKeyValidator() *keyValidator {
	return &keyValidator{
		client:      resty.New().SetTimeout(10 * time.Second),
		telegramURL: "https://api.telegram.org",
		geminiURL:   "https://generativelanguage.googleapis.com",
		openAIURL:   "https://api.openai.com",
	}
}

// RunSetupWizard runs an interactive wizard to collect required configuration.
// Returns true if setup was successful and the bot should continue starting.
func RunSetupWizard() bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🔎 Telegram Identify Bot - First-time Setup"))
	fmt.Println()

	v := newKeyValidator()
	var botToken, apiKey, allowedUsers string
	provider := ProviderGemini

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Message @BotFather on Telegram → /newbot → copy token").
				Value(&botToken).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("token is required")
					}
					return v.validateTelegramToken(context.Background(), s)
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("Google Gemini", ProviderGemini),
					huh.NewOption("OpenAI", ProviderOpenAI),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model API Key").
				DescriptionFunc(func() string {
					if provider == ProviderOpenAI {
						return "Get yours at https://platform.openai.com/api-keys"
					}
					return "Get yours at https://aistudio.google.com/apikey"
				}, &provider).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					return v.validateAPIKey(context.Background(), provider, s)
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Allowed Telegram User IDs").
				Description("Comma separated. Leave empty to allow everyone. Message @userinfobot to get your ID").
				Value(&allowedUsers).
				Validate(validateUserIDs),
		),
	).WithTheme(huh.ThemeBase16())

	err := form.Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := map[string]string{
		"BOT_TOKEN":      botToken,
		"MODEL_PROVIDER": provider,
	}
	if provider == ProviderOpenAI {
		values["OPENAI_API_KEY"] = apiKey
	} else {
		values["GEMINI_API_KEY"] = apiKey
	}
	if allowedUsers = strings.TrimSpace(allowedUsers); allowedUsers != "" {
		values["ALLOWED_USER_IDS"] = allowedUsers
	}

	configPath, err := FilePath()
	if err == nil {
		err = WriteEnvFile(configPath, values)
	}
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		WaitOnWindows()
		return false
	}

	// Set values in current process
	for k, val := range values {
		os.Setenv(k, val)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	fmt.Println("Starting bot...")
	fmt.Println()

	return true
}

func validateUserIDs(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err != nil {
			return fmt.Errorf("%q is not a number", part)
		}
	}
	return nil
}

// validateTelegramToken validates a Telegram bot token by calling the getMe API.
func (v *keyValidator) validateTelegramToken(ctx context.Context, token string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}

	_, err := v.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&result).
		Get(fmt.Sprintf("%s/bot%s/getMe", v.telegramURL, token))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("connection timed out - check your internet")
		}
		return errors.New("connection failed - check your internet")
	}

	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return errors.New("token rejected by Telegram")
	}

	return nil
}

// validateAPIKey validates a model API key with a lightweight models list call.
func (v *keyValidator) validateAPIKey(ctx context.Context, provider, key string) error {
	req := v.client.R().SetContext(ctx)

	var url string
	switch provider {
	case ProviderOpenAI:
		url = v.openAIURL + "/v1/models"
		req.SetAuthToken(key)
	default:
		url = v.geminiURL + "/v1beta/models"
		req.SetQueryParam("key", key)
	}

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	res, err := req.SetError(&apiErr).Get(url)
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	switch res.StatusCode() {
	case 200:
		return nil
	case 400, 401, 403:
		if apiErr.Error.Message != "" {
			return errors.New(apiErr.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", res.StatusCode())
	default:
		return fmt.Errorf("unexpected response (HTTP %d)", res.StatusCode())
	}
}

// WriteEnvFile writes the configuration to path.
// Uses restrictive permissions (0600) since the file contains secrets.
func WriteEnvFile(path string, values map[string]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	// Write in a consistent order, quoting values to handle special characters
	for _, key := range envFileOrder {
		if val, ok := values[key]; ok {
			if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
				return fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
	}

	return nil
}

// WaitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// FatalWithWait logs a fatal error and waits on Windows before exiting.
func FatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	WaitOnWindows()
	os.Exit(1)
}
