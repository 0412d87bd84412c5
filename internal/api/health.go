package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Check is a named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	service string
	version string
	checks  []Check
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(service, version string, timeout time.Duration, checks ...Check) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{service: service, version: version, checks: checks, timeout: timeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			slog.Error("Health check failed", "check", c.Name, "error", err)
			status["status"] = "degraded"
			checks[c.Name] = "unreachable"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	JSON(w, statusCode, status)
}

// Banner describes the service and which components are wired.
func (h *HealthHandler) Banner(w http.ResponseWriter, _ *http.Request) {
	components := make(map[string]bool, len(h.checks))
	for _, c := range h.checks {
		components[c.Name] = true
	}
	JSON(w, http.StatusOK, map[string]any{
		"service":    h.service,
		"version":    h.version,
		"status":     "running",
		"components": components,
	})
}

// RegisterHealth registers the banner and health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/", h.Banner)
	r.Get("/health", h.Health)
}
