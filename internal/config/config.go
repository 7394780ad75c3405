package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	AppName     = "telegram-identify-bot"
	EnvFileName = "config.env"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the process configuration read from the environment.
type Config struct {
	BotToken           string        `env:"BOT_TOKEN"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	ModelProvider      string        `env:"MODEL_PROVIDER" envDefault:"gemini"`
	ModelName          string        `env:"MODEL_NAME"` // empty selects the provider default
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	MaxImageBytes      int64         `env:"MAX_IMAGE_BYTES" envDefault:"10485760"`
	LogFile            string        `env:"LOG_FILE" envDefault:"telegram-identify-bot.log"`
	CacheDBPath        string        `env:"CACHE_DB_PATH"`        // empty disables the response cache
	ConversationLogDir string        `env:"CONVERSATION_LOG_DIR"` // empty disables conversation logs
	AllowedUserIDs     []int64       `env:"ALLOWED_USER_IDS" envSeparator:","`
	Debug              bool          `env:"DEBUG"`
}

// ConfigDir returns the application's config directory path.
// Creates the directory if it doesn't exist.
func ConfigDir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// FilePath returns the full path to the config file.
func FilePath() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Variables already set in the environment win. Errors are
// ignored since the file may not exist.
func LoadEnvFile() {
	configPath, err := FilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// Parse reads the configuration from the given variables only.
func Parse(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that parsed but cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.ModelProvider != ProviderGemini && c.ModelProvider != ProviderOpenAI {
		errs = append(errs, fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.ModelProvider))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.SessionIdleTimeout < 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must not be negative"))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// Missing returns the names of required variables that are not set. A
// missing model API key is not fatal; model calls then fail individually.
func (c *Config) Missing() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	return missing
}

// APIKey returns the key of the selected model provider.
func (c *Config) APIKey() string {
	if c.ModelProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// APIKeyVar returns the variable name holding the selected provider's key.
func (c *Config) APIKeyVar() string {
	if c.ModelProvider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}
