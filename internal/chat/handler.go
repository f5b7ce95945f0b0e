package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neuroexpert/site/internal/api"
)

const (
	channelHTTP = "chat_http"
	channelWS   = "chat_ws"
)

// Handler serves the chat endpoints.
type Handler struct {
	svc          *Service
	maxBodyBytes int64
	logger       *slog.Logger
	origins      []string
}

// NewHandler creates a chat handler. maxMessageBytes bounds the message
// length; origins lists the WebSocket origin patterns.
func NewHandler(svc *Service, maxMessageBytes int, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = 4000
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		svc:          svc,
		maxBodyBytes: int64(maxMessageBytes) + 1024,
		logger:       logger,
		origins:      origins,
	}
}

// RegisterRoutes registers chat routes. limit, if non-nil, wraps the
// message endpoints.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.With(limit).Post("/", h.HandleChat)
	})
	r.With(limit).Get("/ws/chat", h.HandleWebSocket)
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := api.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		if errors.Is(err, api.ErrBodyTooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if int64(len(req.Message)) > h.maxBodyBytes-1024 {
		api.Error(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}

	resp, err := h.svc.Reply(r.Context(), channelHTTP, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			api.Error(w, http.StatusBadRequest, "session_id and message are required")
			return
		}
		h.logger.Error("Chat endpoint error", "error", err)
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /api/chat/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	db := map[string]string{"status": "healthy"}
	status := "healthy"
	if err := h.svc.Ping(r.Context()); err != nil {
		db = map[string]string{"status": "unhealthy", "error": err.Error()}
		status = "degraded"
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"database":   db,
		"ai_clients": h.svc.ProviderStatus(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
