// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	Environment  string
	FrontendURL  string
	DBPath       string
	StaticDir    string // serve this directory instead of the embedded build when set
	MediaCatalog string // YAML source catalogue; empty uses the embedded default

	SessionStore string // "sqlite", "redis" or "memory"
	RedisURL     string
	SessionTTL   time.Duration

	Chat            ChatConfig
	Contact         ContactConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
	ChatRetention   time.Duration
}

// ChatConfig controls the chat service and its model providers.
type ChatConfig struct {
	DefaultModel       string
	AllowedModels      []string
	MaxContextTokens   int
	MaxHistoryMessages int
	MaxMessageBytes    int
	Timeout            time.Duration
	OpenAIKey          string
	AnthropicKey       string
	GoogleKey          string
	GeminiBaseURL      string
}

// ContactConfig controls contact-form notifications.
type ContactConfig struct {
	TelegramToken   string
	TelegramChatID  string
	TelegramBaseURL string
	Timeout         time.Duration
}

// TelegramConfigured reports whether notifications can be sent.
func (c ContactConfig) TelegramConfigured() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// RateLimitConfig holds per-client request budgets.
type RateLimitConfig struct {
	ChatPerMinute    int
	ContactPerMinute int
	Window           time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("APP_ENV", "development"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/neuroexpert.db"),
		StaticDir:    getEnv("STATIC_DIR", ""),
		MediaCatalog: getEnv("MEDIA_CATALOG", ""),
		SessionStore: strings.ToLower(getEnv("SESSION_STORE", "sqlite")),
		RedisURL:     getEnv("REDIS_URL", ""),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		Chat: ChatConfig{
			DefaultModel:       getEnv("CHAT_DEFAULT_MODEL", "gpt-4o"),
			AllowedModels:      getEnvList("CHAT_ALLOWED_MODELS", []string{"gpt-4o", "gpt-4o-mini", "claude-3-5-sonnet-latest", "gemini-1.5-flash"}),
			MaxContextTokens:   getEnvInt("CHAT_MAX_CONTEXT_TOKENS", 3000),
			MaxHistoryMessages: getEnvInt("CHAT_MAX_HISTORY_MESSAGES", 20),
			MaxMessageBytes:    getEnvInt("CHAT_MAX_MESSAGE_BYTES", 4000),
			Timeout:            getEnvDuration("CHAT_TIMEOUT", 30*time.Second),
			OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:       getEnv("ANTHROPIC_API_KEY", ""),
			GoogleKey:          getEnv("GOOGLE_API_KEY", ""),
			GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		},
		Contact: ContactConfig{
			TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:  getEnv("TELEGRAM_CHAT_ID", ""),
			TelegramBaseURL: getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
			Timeout:         getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			ChatPerMinute:    getEnvInt("RATE_LIMIT_CHAT", 10),
			ContactPerMinute: getEnvInt("RATE_LIMIT_CONTACT", 5),
			Window:           time.Minute,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		ChatRetention: getEnvDuration("CHAT_RETENTION", 30*24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.SessionStore {
	case "sqlite", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of sqlite, redis, memory; got %q", c.SessionStore)
	}
	if c.Chat.DefaultModel == "" {
		return fmt.Errorf("CHAT_DEFAULT_MODEL cannot be empty")
	}
	if c.Chat.MaxContextTokens <= 0 {
		return fmt.Errorf("CHAT_MAX_CONTEXT_TOKENS must be > 0")
	}
	if c.Chat.MaxHistoryMessages < 0 {
		return fmt.Errorf("CHAT_MAX_HISTORY_MESSAGES must be >= 0")
	}
	if c.Chat.MaxMessageBytes <= 0 {
		return fmt.Errorf("CHAT_MAX_MESSAGE_BYTES must be > 0")
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("CHAT_TIMEOUT must be > 0")
	}
	if c.RateLimit.ChatPerMinute <= 0 || c.RateLimit.ContactPerMinute <= 0 {
		return fmt.Errorf("rate limits must be > 0")
	}
	if c.ChatRetention <= 0 {
		return fmt.Errorf("CHAT_RETENTION must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.Environment != "" {
		return c.Environment == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() || c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
