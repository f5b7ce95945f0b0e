package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neuroexpert/site/internal/api"
)

// VisitorCookie carries the opaque visitor key the server stores session
// identifiers under.
const VisitorCookie = "neuroexpert_visitor"

// Handler hands session identifiers to clients that cannot keep one
// themselves, such as embedded widgets without local storage. Each visitor
// cookie maps to exactly one identifier, even under concurrent requests
// across replicas sharing the store.
type Handler struct {
	store  Store
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewHandler creates a session handler. ttl bounds the visitor cookie.
func NewHandler(store Store, ttl time.Duration, secure bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, ttl: ttl, secure: secure, logger: logger}
}

// RegisterRoutes registers GET /api/session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.HandleSession)
}

// HandleSession returns {"session_id": ...} for the visitor, issuing the
// visitor cookie on first contact.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	visitor := ""
	if c, err := r.Cookie(VisitorCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			visitor = c.Value
		}
	}
	if visitor == "" {
		visitor = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     VisitorCookie,
			Value:    visitor,
			Path:     "/",
			MaxAge:   int(h.ttl.Seconds()),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	id := NewSupplier(h.store, WithKey("visitor:"+visitor), WithLogger(h.logger)).ID(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	api.JSON(w, http.StatusOK, map[string]string{"session_id": id})
}
