// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sparkmindlabs/edugenie/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SessionTTL  time.Duration

	Access          AccessConfig
	LLM             LLMConfig
	Upload          UploadConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// AccessConfig configures the shared access code gate.
type AccessConfig struct {
	Code        string
	MaxAttempts int
	// CodeLength only sizes the UI input. It is not derived from Code.
	CodeLength int
}

// LLMConfig configures the completion endpoint. APIKey must never be logged.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// UploadConfig configures reference uploads.
type UploadConfig struct {
	ImageStrategy     string // "vision" or "ocr"
	AllowedExtensions []string
	MaxBytes          int64
	OCRLanguages      []string
}

// RateLimitConfig bounds chat requests per anonymous identity.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", ":memory:"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		Access: AccessConfig{
			Code:        getEnv("ACCESS_CODE", "8124"),
			MaxAttempts: getEnvInt("MAX_ATTEMPTS", 3),
			CodeLength:  getEnvInt("CODE_LENGTH", 4),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			VisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		},
		Upload: UploadConfig{
			ImageStrategy:     strings.ToLower(getEnv("EXTRACT_IMAGE_STRATEGY", "vision")),
			AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", []string{"pdf", "png", "jpg", "jpeg"}),
			MaxBytes:          int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
			OCRLanguages:      getEnvList("OCR_LANGUAGES", []string{"eng"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("CHAT_RATE_LIMIT", 20),
			WindowDuration:    getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
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
	if c.Access.Code == "" {
		return fmt.Errorf("ACCESS_CODE cannot be empty")
	}
	if c.Access.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be > 0")
	}
	if c.Access.CodeLength <= 0 {
		return fmt.Errorf("CODE_LENGTH must be > 0")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.Upload.ImageStrategy != "vision" && c.Upload.ImageStrategy != "ocr" {
		return fmt.Errorf("EXTRACT_IMAGE_STRATEGY must be \"vision\" or \"ocr\", got %q", c.Upload.ImageStrategy)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("ALLOWED_EXTENSIONS cannot be empty")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT and CHAT_RATE_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	return nil
}

// LogValue implements slog.LogValuer. Secrets are masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("db_path", c.DBPath),
		slog.Duration("session_ttl", c.SessionTTL),
		slog.String("access_code", logging.RedactValue(c.Access.Code)),
		slog.Int("max_attempts", c.Access.MaxAttempts),
		slog.String("api_key", logging.RedactValue(c.LLM.APIKey)),
		slog.String("model", c.LLM.Model),
		slog.String("vision_model", c.LLM.VisionModel),
		slog.Duration("completion_timeout", c.LLM.Timeout),
		slog.String("image_strategy", c.Upload.ImageStrategy),
		slog.Any("allowed_extensions", c.Upload.AllowedExtensions),
		slog.Bool("conversation_log", c.ConversationLog.Enabled),
	)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
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
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
