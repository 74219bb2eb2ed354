package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UIConfig is the public configuration the chat page renders from.
type UIConfig struct {
	Title             string   `json:"title"`
	Welcome           string   `json:"welcome"`
	ChatPlaceholder   string   `json:"chat_placeholder"`
	CodeLength        int      `json:"code_length"`
	MaxAttempts       int      `json:"max_attempts"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxUploadBytes    int64    `json:"max_upload_bytes"`
	ExportFormats     []string `json:"export_formats"`
}

// DefaultUIConfig returns the fixed texts of the chat page.
func DefaultUIConfig() UIConfig {
	return UIConfig{
		Title:           "EduGenie Assistant",
		Welcome:         "Welcome to EduGenie Assistant! Please enter your 4-digit EduGenie Access Code.",
		ChatPlaceholder: "Ask EduGenie to create a worksheet, lesson plan, evaluation, etc.",
		CodeLength:      4,
		ExportFormats:   []string{"pdf", "docx"},
	}
}

// ConfigHandler serves UIConfig.
type ConfigHandler struct {
	cfg UIConfig
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(cfg UIConfig) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetConfig returns the UI configuration.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.cfg)
}

// RegisterRoutes registers the config route.
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
}
