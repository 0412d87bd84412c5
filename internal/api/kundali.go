package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/go-chi/chi/v5"
)

// DefaultMaxRequestBodySize is the largest accepted JSON body (1MB).
const DefaultMaxRequestBodySize = 1 << 20

// ChartService is the subset of the orchestrator used by these handlers.
type ChartService interface {
	GetChart(ctx context.Context, profile domain.UserProfile) (*domain.Chart, error)
	GetSessionChart(ctx context.Context, sessionID string) (*domain.Chart, error)
	SessionInfo(ctx context.Context, sessionID string) (*domain.SessionInfo, error)
}

// KundaliHandler serves chart and session lookups.
type KundaliHandler struct {
	svc ChartService
}

// NewKundaliHandler creates a KundaliHandler.
func NewKundaliHandler(svc ChartService) *KundaliHandler {
	return &KundaliHandler{svc: svc}
}

// RegisterRoutes registers the chart and session routes.
func (h *KundaliHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/kundali", h.GetKundali)
	r.Get("/v1/session/{id}", h.GetSession)
	r.Get("/v1/session/{id}/kundali", h.GetSessionKundali)
}

// GetKundali handles POST /v1/kundali.
func (h *KundaliHandler) GetKundali(w http.ResponseWriter, r *http.Request) {
	var profile domain.UserProfile
	if err := DecodeJSON(w, r, DefaultMaxRequestBodySize, &profile); err != nil {
		WriteError(w, err)
		return
	}

	c, err := h.svc.GetChart(r.Context(), profile)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, err)
		return
	}

	slog.Info("Kundali computed", "birth_place", profile.BirthPlace)
	JSON(w, http.StatusOK, c)
}

// GetSession handles GET /v1/session/{id}.
func (h *KundaliHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SessionInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, info)
}

// GetSessionKundali handles GET /v1/session/{id}/kundali.
func (h *KundaliHandler) GetSessionKundali(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	c, err := h.svc.GetSessionChart(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"kundali":    c,
	})
}
