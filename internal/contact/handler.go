// Package contact serves the contact form and forwards leads to the sales
// chat on Telegram.
package contact

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/neuroexpert/site/internal/api"
	"github.com/neuroexpert/site/internal/domain"
	"github.com/neuroexpert/site/internal/identity"
)

// SuccessMessage is shown to the visitor after a successful submission.
const SuccessMessage = "Спасибо! Мы свяжемся с вами в течение 15 минут"

const (
	maxBodyBytes   = 16 << 10
	storeTimeout   = 5 * time.Second
	minNameLen     = 2
	minContactLen  = 5
	minServiceLen  = 2
	maxFieldLength = 2000
)

// Submissions persists contact form submissions.
type Submissions interface {
	SaveContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error
	MarkContactNotified(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// Notifier delivers a lead notification.
type Notifier interface {
	Configured() bool
	Notify(ctx context.Context, text string) error
	Ping(ctx context.Context) error
}

// Request is the contact form body.
type Request struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// Response is returned on success.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Handler serves the contact endpoints.
type Handler struct {
	repo     Submissions
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHandler creates a contact handler. repo may be nil, in which case
// submissions are only forwarded.
func NewHandler(repo Submissions, notifier Notifier, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{repo: repo, notifier: notifier, timeout: timeout, logger: logger}
}

// RegisterRoutes registers contact routes. limit, if non-nil, wraps the
// submission endpoint.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/contact", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.With(limit).HandleFunc("/", h.HandleSubmit)
	})
}

// validate trims the request in place and returns the problem shown to the
// visitor, or "" when the request is acceptable.
func (req *Request) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Service = strings.TrimSpace(req.Service)
	req.Message = strings.TrimSpace(req.Message)

	switch {
	case req.Name == "" || req.Contact == "" || req.Service == "":
		return "Missing required fields"
	case utf8.RuneCountInString(req.Name) < minNameLen:
		return "Name must be at least 2 characters"
	case utf8.RuneCountInString(req.Contact) < minContactLen:
		return "Contact information is required"
	case utf8.RuneCountInString(req.Service) < minServiceLen:
		return "Service selection is required"
	case len(req.Name) > maxFieldLength || len(req.Contact) > maxFieldLength ||
		len(req.Service) > maxFieldLength || len(req.Message) > maxFieldLength:
		return "Field too long"
	}
	return ""
}

// HandleSubmit handles POST /api/contact.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		api.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req Request
	if err := api.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		if errors.Is(err, api.ErrBodyTooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if problem := req.validate(); problem != "" {
		api.Error(w, http.StatusBadRequest, problem)
		return
	}

	if h.notifier == nil || !h.notifier.Configured() {
		h.logger.Error("Contact form received but Telegram is not configured")
		api.Error(w, http.StatusInternalServerError, "Server not configured for Telegram")
		return
	}

	sub := &domain.ContactSubmission{
		Name:      req.Name,
		Contact:   req.Contact,
		Service:   req.Service,
		Message:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	stored := h.save(r.Context(), sub)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.notifier.Notify(ctx, sub.NotificationText()); err != nil {
		h.logger.Error("Failed to send Telegram notification", "error", err, "submission_id", sub.ID)
		api.Error(w, http.StatusBadGateway, "Failed to send Telegram notification")
		return
	}
	if stored {
		h.markNotified(r.Context(), sub.ID)
	}

	h.logger.Info("Contact form submitted",
		"submission_id", sub.ID,
		"service", sub.Service,
		"ip", identity.ClientIPFromContext(r.Context()))

	api.JSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   SuccessMessage,
		Timestamp: sub.CreatedAt.Format(time.RFC3339),
	})
}

// save stores the submission. Failures are logged and do not block the
// notification.
func (h *Handler) save(ctx context.Context, sub *domain.ContactSubmission) bool {
	if h.repo == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := h.repo.SaveContactSubmission(ctx, sub); err != nil {
		h.logger.Warn("Failed to save contact submission", "error", err)
		return false
	}
	return true
}

func (h *Handler) markNotified(ctx context.Context, id int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := h.repo.MarkContactNotified(ctx, id); err != nil {
		h.logger.Warn("Failed to mark contact submission notified", "error", err, "submission_id", id)
	}
}

// HandleHealth handles GET /api/contact/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := "healthy"
	db := map[string]string{"status": "healthy"}
	if h.repo == nil {
		db = map[string]string{"status": "unhealthy", "error": "not configured"}
		status = "degraded"
	} else if err := h.repo.Ping(ctx); err != nil {
		db = map[string]string{"status": "unhealthy", "error": err.Error()}
		status = "degraded"
	}

	configured := h.notifier != nil && h.notifier.Configured()
	telegram := "not_configured"
	if configured {
		telegram = "connected"
		if err := h.notifier.Ping(ctx); err != nil {
			h.logger.Warn("Telegram health check failed", "error", err)
			telegram = "connection_failed"
		}
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"database": db,
		"telegram": map[string]interface{}{
			"configured": configured,
			"status":     telegram,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
