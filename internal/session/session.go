// Package session keeps per-conversation state and guarantees that the
// chart for a session is computed at most once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/store"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// sharedCallTimeout bounds a load-or-compute shared by concurrent callers.
const sharedCallTimeout = 60 * time.Second

// ChartFunc computes a chart on a session's first turn.
type ChartFunc func(ctx context.Context) (*domain.Chart, error)

// Manager fronts a store.Repository with a hot chart cache.
type Manager struct {
	repo   store.Repository
	charts *cache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewManager creates a session manager. cacheTTL bounds how long a chart
// stays in memory; zero selects one hour.
func NewManager(repo store.Repository, cacheTTL time.Duration, logger *slog.Logger) *Manager {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		charts: cache.New(cacheTTL, 10*time.Minute),
		logger: logger,
	}
}

// GetOrCreate returns the chart for sessionID, calling onMiss only when no
// session has been stored yet. Concurrent first calls for the same id share a
// single onMiss call, which runs detached from any one caller's cancellation.
// A failed store read returns ErrStoreUnavailable and nothing is written. An
// onMiss failure is returned as a domain.InputError and nothing is persisted.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, profile *domain.UserProfile, onMiss ChartFunc) (*domain.Chart, error) {
	if c, ok := m.cachedChart(sessionID); ok {
		return c, nil
	}

	ch := m.group.DoChan(sessionID, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return m.loadOrCompute(sharedCtx, sessionID, profile, onMiss)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Chart), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) loadOrCompute(ctx context.Context, sessionID string, profile *domain.UserProfile, onMiss ChartFunc) (*domain.Chart, error) {
	if c, ok := m.cachedChart(sessionID); ok {
		return c, nil
	}

	state, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		m.logger.Error("session load failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: load session %s: %w", domain.ErrStoreUnavailable, sessionID, err)
	}
	if state != nil && state.Chart != nil {
		m.charts.SetDefault(sessionID, state.Chart)
		return state.Chart, nil
	}

	chart, err := onMiss(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("compute chart: %w", err)
		}
		return nil, domain.NewInputError("birth_details", "could not compute chart", err)
	}
	if chart == nil {
		return nil, domain.NewInputError("birth_details", "could not compute chart", errors.New("empty chart"))
	}

	if state == nil {
		state = domain.NewSessionState(sessionID, profile)
	} else if state.Profile == nil {
		state.Profile = profile
	}
	state.AttachChart(chart)
	state.UpdatedAt = time.Now()

	if err := m.repo.UpsertSession(ctx, state); err != nil {
		m.logger.Error("failed to persist new session", "session_id", sessionID, "error", err)
	}

	m.charts.SetDefault(sessionID, state.Chart)
	return state.Chart, nil
}

// Load returns the stored state, or nil when the session does not exist.
// A failed read wraps domain.ErrStoreUnavailable.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load session %s: %w", domain.ErrStoreUnavailable, sessionID, err)
	}
	return state, nil
}

// Save persists the full state and bumps its update time.
func (m *Manager) Save(ctx context.Context, state *domain.SessionState) error {
	state.UpdatedAt = time.Now()
	if err := m.repo.UpsertSession(ctx, state); err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Delete removes a session and evicts its cached chart.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.charts.Delete(sessionID)
	return m.repo.DeleteSession(ctx, sessionID)
}

// Ping checks the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

func (m *Manager) cachedChart(sessionID string) (*domain.Chart, bool) {
	v, ok := m.charts.Get(sessionID)
	if !ok {
		return nil, false
	}
	c, ok := v.(*domain.Chart)
	return c, ok && c != nil
}
