package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check is a named dependency health check.
type Check struct {
	Name string
	// Optional checks report "degraded" instead of failing the endpoint.
	Optional bool
	Ping     func(ctx context.Context) error
}

// HealthHandler reports the status of the API and its dependencies.
type HealthHandler struct {
	timeout time.Duration
	checks  []Check
}

// NewHealthHandler creates a health handler running checks with timeout.
func NewHealthHandler(timeout time.Duration, checks ...Check) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{timeout: timeout, checks: checks}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			slog.Error("Health check failed", "check", c.Name, "error", err)
			checks[c.Name] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
			if !c.Optional {
				status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
			}
			continue
		}
		checks[c.Name] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
