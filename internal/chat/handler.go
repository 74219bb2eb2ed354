package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sparkmindlabs/edugenie/internal/api"
	"github.com/sparkmindlabs/edugenie/internal/domain"
	"github.com/sparkmindlabs/edugenie/internal/export"
	"github.com/sparkmindlabs/edugenie/internal/extract"
	"github.com/sparkmindlabs/edugenie/internal/gate"
	"github.com/sparkmindlabs/edugenie/internal/identity"
)

// Wire codes that are not domain errors.
const (
	CodeTurnInProgress = "turn_in_progress"
	CodeSessionExpired = "session_expired"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

// WelcomeMessage is sent with the session event of a fresh connection.
const WelcomeMessage = "Welcome to EduGenie Assistant! Please enter your 4-digit EduGenie Access Code."

const (
	maxSocketMessageBytes = 1 << 20
	multipartOverhead     = 1 << 20
	closeTimeout          = 5 * time.Second
)

// Client -> server message types.
const (
	msgSubmitCode  = "submit_code"
	msgSendMessage = "send_message"
	msgPing        = "ping"
)

// HandlerConfig configures the chat transport.
type HandlerConfig struct {
	AllowedOrigin  string
	IsDev          bool
	MaxUploadBytes int64
}

// Handler serves the chat socket and the upload and export endpoints.
type Handler struct {
	svc     *Service
	conns   *ConnectionManager
	limiter *RateLimiter
	log     ConversationLogger
	cfg     HandlerConfig
}

// NewHandler creates a Handler. A nil conversation logger disables logging.
func NewHandler(svc *Service, conns *ConnectionManager, limiter *RateLimiter, convLog ConversationLogger, cfg HandlerConfig) *Handler {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = extract.DefaultMaxBytes
	}
	return &Handler{svc: svc, conns: conns, limiter: limiter, log: convLog, cfg: cfg}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.ServeWS)
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/reference", h.HandleUpload)
		r.Get("/export", h.HandleExport)
	})
}

type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type sessionEvent struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	Authenticated bool   `json:"authenticated"`
	Remaining     int    `json:"remaining"`
	MaxAttempts   int    `json:"max_attempts"`
	Message       string `json:"message"`
}

type decisionEvent struct {
	Type      string       `json:"type"`
	Outcome   gate.Outcome `json:"outcome"`
	Remaining int          `json:"remaining"`
	Message   string       `json:"message"`
}

type replyEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Turns   int    `json:"turns"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ServeWS upgrades to a WebSocket. The session lives exactly as long as the
// connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}
	if !h.checkOrigin(r) {
		api.Error(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(maxSocketMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.svc.Open(ctx, userID)
	if err != nil {
		slog.Error("Failed to open chat session", "error", err, "user_id", userID)
		h.writeError(ws, err)
		return
	}
	slog.Info("Chat connection opened", "user_id", userID, "session_id", sess.ID, "ip", identity.IPFromRequest(r))

	h.conns.Register(userID, sess.ID, ws)
	status := h.svc.Engine().Gate().Status(sess)
	if err := writeJSON(ws, sessionEvent{
		Type:        "session",
		SessionID:   sess.ID,
		Remaining:   status.Remaining,
		MaxAttempts: h.svc.Engine().Gate().MaxAttempts(),
		Message:     WelcomeMessage,
	}); err != nil {
		slog.Debug("Failed to send session event", "error", err)
	}

	var turns sync.WaitGroup
	h.readLoop(ctx, ws, userID, sess.ID, &turns)

	cancel()
	turns.Wait()
	h.conns.Unregister(userID, sess.ID, ws)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := h.svc.Close(closeCtx, sess.ID); err != nil {
		slog.Warn("Failed to discard chat session", "error", err, "session_id", sess.ID)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string, turns *sync.WaitGroup) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "user_id", userID, "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID, "session_id", sessionID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeError(ws, domain.InvalidError("Messages must be JSON objects."))
			continue
		}

		switch msg.Type {
		case msgPing:
			if err := writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case msgSubmitCode:
			h.submitCode(ctx, ws, userID, sessionID, msg.Content)
		case msgSendMessage:
			if !h.limiter.Allow(userID) {
				h.writeError(ws, errRateLimited)
				continue
			}
			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				h.sendMessage(ctx, ws, userID, sessionID, text)
			}(msg.Content)
		default:
			h.writeError(ws, domain.InvalidError("Unknown message type."))
		}
	}
}

func (h *Handler) submitCode(ctx context.Context, ws *websocket.Conn, userID, sessionID, code string) {
	decision, err := h.svc.SubmitCode(ctx, userID, sessionID, code)
	if err != nil {
		h.failTurn(ws, sessionID, err)
		return
	}

	h.log.Log(ConversationLogEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "chat_ws",
		Direction: "outbound",
		EventType: "access_code_checked",
		Meta: map[string]any{
			"outcome":   decision.Outcome,
			"remaining": decision.Remaining,
		},
	})
	if err := writeJSON(ws, decisionEvent{
		Type:      "decision",
		Outcome:   decision.Outcome,
		Remaining: decision.Remaining,
		Message:   decision.Message(),
	}); err != nil {
		slog.Debug("Failed to send decision", "error", err)
	}
}

func (h *Handler) sendMessage(ctx context.Context, ws *websocket.Conn, userID, sessionID, text string) {
	start := time.Now()
	reply, sess, err := h.svc.SendMessage(ctx, userID, sessionID, text)
	if err != nil {
		h.log.Log(ConversationLogEvent{
			UserID:     userID,
			SessionID:  sessionID,
			Channel:    "chat_ws",
			Direction:  "outbound",
			EventType:  "chat_turn_failed",
			ContentRaw: text,
			Meta:       map[string]any{"error": domain.CodeOf(err)},
		})
		h.failTurn(ws, sessionID, err)
		return
	}

	turns := len(sess.Transcript)
	slog.Info("Chat turn completed",
		"user_id", userID,
		"session_id", sessionID,
		"turns", turns,
		"reference_merged", reply.ReferenceMerged,
		"duration", time.Since(start),
	)
	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Meta:       map[string]any{"reference_merged": reply.ReferenceMerged},
	})
	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Content,
	})

	if err := writeJSON(ws, replyEvent{Type: "reply", Content: reply.Content, Turns: turns}); err != nil {
		slog.Debug("Failed to send reply", "error", err)
	}
}

// failTurn reports err on the socket. An expired session also closes it.
func (h *Handler) failTurn(ws *websocket.Conn, sessionID string, err error) {
	h.writeError(ws, err)
	if errors.Is(err, ErrUnknownSession) {
		slog.Info("Closing socket of expired session", "session_id", sessionID)
		_ = ws.Close(websocket.StatusNormalClosure, "session expired")
	}
}

// HandleUpload handles POST /api/sessions/{sessionID}/reference.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, domain.CodeUploadTooLarge, "The uploaded file is too large.")
			return
		}
		writeHTTPError(w, domain.InvalidError("Attach the file in a multipart field named \"file\"."))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeHTTPError(w, domain.InvalidError("Could not read the uploaded file."))
		return
	}

	ref, err := h.svc.AttachReference(r.Context(), userID, sessionID, extract.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeHTTPError(w, err)
		return
	}

	h.log.Log(ConversationLogEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "upload_http",
		Direction: "outbound",
		EventType: "reference_attached",
		Meta: map[string]any{
			"file":        ref.Name,
			"strategy":    ref.Strategy,
			"text_length": len(ref.Text),
			"request_id":  chiMiddleware.GetReqID(r.Context()),
		},
	})

	pending := strings.TrimSpace(ref.Text) != ""
	message := "Reference attached. It will be included with your next message."
	if !pending {
		message = "No readable text was found in the uploaded file."
	}
	api.JSON(w, http.StatusOK, UploadResponse{
		Name:       ref.Name,
		Strategy:   string(ref.Strategy),
		Characters: utf8.RuneCountInString(ref.Text),
		Pending:    pending,
		Message:    message,
	})
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Name       string `json:"name"`
	Strategy   string `json:"strategy"`
	Characters int    `json:"characters"`
	Pending    bool   `json:"pending"`
	Message    string `json:"message"`
}

// HandleExport handles GET /api/sessions/{sessionID}/export?format=pdf|docx.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeHTTPError(w, err)
		return
	}
	doc, err := h.svc.Export(r.Context(), userID, sessionID, format)
	if err != nil {
		writeHTTPError(w, err)
		return
	}

	h.log.Log(ConversationLogEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "export_http",
		Direction: "inbound",
		EventType: "reply_exported",
		Meta:      map[string]any{"format": format, "bytes": len(doc.Data)},
	})

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		slog.Debug("Failed to write export", "error", err, "session_id", sessionID)
	}
}

var errRateLimited = errors.New("rate limit exceeded")

// classify maps err to an HTTP status and a wire error.
func classify(err error) (int, errorEvent) {
	ev := errorEvent{Type: "error", Error: domain.CodeOf(err), Message: domain.MessageOf(err)}

	switch {
	case errors.Is(err, ErrTurnInProgress):
		return http.StatusConflict, errorEvent{Type: "error", Error: CodeTurnInProgress,
			Message: "Please wait for the current answer to finish."}
	case errors.Is(err, ErrUnknownSession):
		return http.StatusNotFound, errorEvent{Type: "error", Error: CodeSessionExpired,
			Message: "Your session has ended. Please reload the page to start again."}
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, errorEvent{Type: "error", Error: CodeRateLimited,
			Message: "You are sending messages too quickly. Please wait a moment."}
	}

	switch domain.KindOf(err) {
	case domain.KindAuth:
		return http.StatusForbidden, ev
	case domain.KindExtraction:
		return http.StatusUnprocessableEntity, ev
	case domain.KindCompletion:
		return http.StatusBadGateway, ev
	case domain.KindExport:
		return http.StatusInternalServerError, ev
	case domain.KindInvalid:
		return http.StatusBadRequest, ev
	default:
		slog.Error("Unclassified chat error", "error", err)
		return http.StatusInternalServerError, errorEvent{Type: "error", Error: CodeInternal,
			Message: "Something went wrong. Please try again."}
	}
}

func writeHTTPError(w http.ResponseWriter, err error) {
	status, ev := classify(err)
	api.Error(w, status, ev.Error, ev.Message)
}

func (h *Handler) writeError(ws *websocket.Conn, err error) {
	_, ev := classify(err)
	if werr := writeJSON(ws, ev); werr != nil {
		slog.Debug("Failed to send error event", "error", werr)
	}
}

func writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// Close drops live connections and releases handler resources.
func (h *Handler) Close() {
	slog.Info("Closing chat connections", "count", h.conns.Count())
	h.conns.CloseAll("server shutting down")
	h.limiter.Close()
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}
