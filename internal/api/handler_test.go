//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "input", err: &domain.InputError{Field: "birth_date", Reason: "bad"}, want: http.StatusBadRequest},
		{name: "wrapped input", err: fmt.Errorf("turn: %w", &domain.InputError{Field: "x"}), want: http.StatusBadRequest},
		{name: "not found", err: domain.ErrSessionNotFound, want: http.StatusNotFound},
		{name: "chart outage", err: fmt.Errorf("calc: %w", domain.ErrChartUnavailable), want: http.StatusServiceUnavailable},
		{name: "store outage", err: fmt.Errorf("%w: load session s1: %w", domain.ErrStoreUnavailable, errors.New("database is locked")), want: http.StatusServiceUnavailable},
		{
			name: "outage wrapped as input",
			err:  domain.NewInputError("birth_details", "could not compute chart", domain.ErrChartUnavailable),
			want: http.StatusServiceUnavailable,
		},
		{name: "other", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StatusFromError(tt.err); got != tt.want {
				t.Fatalf("StatusFromError() = %d, want %d", got, tt.want)
			}
		})
	}
}

type fakeChartService struct {
	chart    *domain.Chart
	chartErr error
	sessions map[string]*domain.SessionState
}

func (f *fakeChartService) GetChart(_ context.Context, _ domain.UserProfile) (*domain.Chart, error) {
	return f.chart, f.chartErr
}

func (f *fakeChartService) GetSessionChart(_ context.Context, id string) (*domain.Chart, error) {
	s, ok := f.sessions[id]
	if !ok || s.Chart == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s.Chart, nil
}

func (f *fakeChartService) SessionInfo(_ context.Context, id string) (*domain.SessionInfo, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.SessionInfo{
		SessionID:      id,
		KundaliSummary: s.Chart.Summary(),
		MessageCount:   len(s.Messages),
		ContextKeys:    s.ContextKeys,
	}, nil
}

func newTestRouter(svc ChartService) http.Handler {
	r := chi.NewRouter()
	NewKundaliHandler(svc).RegisterRoutes(r)
	return r
}

func TestGetKundali(t *testing.T) {
	t.Parallel()

	body := `{"name":"Asha","birth_date":"1990-01-15","birth_time":"10:30","birth_place":"Mumbai"}`
	tests := []struct {
		name       string
		svc        *fakeChartService
		body       string
		wantStatus int
	}{
		{
			name:       "ok",
			svc:        &fakeChartService{chart: &domain.Chart{UserName: "Asha"}},
			body:       body,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed body",
			svc:        &fakeChartService{},
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid profile",
			svc:        &fakeChartService{chartErr: &domain.InputError{Field: "birth_date", Reason: "must match format 2006-01-02"}},
			body:       body,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown place",
			svc: &fakeChartService{chartErr: &domain.InputError{
				Field: "birth_place", Reason: "location not found: Atlantis", Err: domain.ErrLocationNotFound,
			}},
			body:       body,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "calculator down",
			svc:        &fakeChartService{chartErr: domain.ErrChartUnavailable},
			body:       body,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/kundali", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newTestRouter(tt.svc).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				var got map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got["error"] == "" {
					t.Fatalf("expected JSON error body, got %s", w.Body.String())
				}
			}
		})
	}
}

func TestSessionRoutes(t *testing.T) {
	t.Parallel()

	svc := &fakeChartService{sessions: map[string]*domain.SessionState{
		"s1": {
			SessionID:   "s1",
			Chart:       &domain.Chart{KeyPositions: domain.KeyPositions{Sun: domain.Position{Sign: "Capricorn"}}},
			Messages:    []domain.Message{{Role: domain.RoleUser, Content: "hi"}, {Role: domain.RoleAssistant, Content: "hello"}},
			ContextKeys: []string{"zodiacs:Capricorn"},
		},
	}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/session/s1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("session info status = %d", w.Code)
	}
	var info domain.SessionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode session info: %v", err)
	}
	if info.MessageCount != 2 || info.KundaliSummary.SunSign != "Capricorn" {
		t.Fatalf("session info = %+v", info)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/session/s1/kundali", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"kundali"`) {
		t.Fatalf("session kundali = %d %s", w.Code, w.Body.String())
	}

	for _, path := range []string{"/v1/session/missing", "/v1/session/missing/kundali"} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", path, w.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ok := Check{Name: "session_store", Probe: func(context.Context) error { return nil }}
	down := Check{Name: "chart_service", Probe: func(context.Context) error { return errors.New("refused") }}

	r := chi.NewRouter()
	NewHealthHandler("kundali-rag", "test", 0, ok).RegisterHealth(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", w.Code)
	}

	r = chi.NewRouter()
	NewHealthHandler("kundali-rag", "test", 0, ok, down).RegisterHealth(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "degraded" || body.Checks["chart_service"] != "unreachable" || body.Checks["session_store"] != "ok" {
		t.Fatalf("health body = %+v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"chart_service":true`) {
		t.Fatalf("banner = %d %s", w.Code, w.Body.String())
	}
}
