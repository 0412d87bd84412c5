package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/chart"
	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/ashureev/kundali-rag/internal/rag"
	"github.com/ashureev/kundali-rag/internal/session"
)

// SessionStore is the session persistence the orchestrator needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID string, profile *domain.UserProfile, onMiss session.ChartFunc) (*domain.Chart, error)
	Load(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
}

// Planner decides whether a turn needs retrieval.
type Planner interface {
	Plan(ctx context.Context, message string, c *domain.Chart, priorResults []domain.RetrievedDocument, priorKeys []string) domain.RetrievalDecision
}

// Retriever fetches knowledge for a decision.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filter *domain.MetadataFilter) ([]domain.RetrievedDocument, []string)
}

// Composer writes the reply.
type Composer interface {
	Compose(ctx context.Context, in rag.ComposeInput) string
}

// Service orchestrates a conversation turn: session init, retrieval
// planning, retrieval, reply composition and persistence.
type Service struct {
	sessions  SessionStore
	charts    chart.Provider
	planner   Planner
	retriever Retriever
	composer  Composer
	convLog   ConversationLogger
	now       func() time.Time
	logger    *slog.Logger
}

// Deps are the collaborators of a Service.
type Deps struct {
	Sessions  SessionStore
	Charts    chart.Provider
	Planner   Planner
	Retriever Retriever
	Composer  Composer
	ConvLog   ConversationLogger
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	if d.ConvLog == nil {
		d.ConvLog = noopConversationLogger{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		sessions:  d.Sessions,
		charts:    d.Charts,
		planner:   d.Planner,
		retriever: d.Retriever,
		composer:  d.Composer,
		convLog:   d.ConvLog,
		now:       d.Now,
		logger:    d.Logger.With("component", "orchestrator"),
	}
}

// HandleTurn runs one conversation turn. Input errors (bad birth data,
// unknown birth place), chart outages and unreadable session state abort
// it; every other failure degrades to a reply without retrieved context.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &domain.InputError{Field: "message", Reason: "is required"}
	}
	if req.SessionID == "" {
		return nil, &domain.InputError{Field: "session_id", Reason: "is required"}
	}
	if req.Profile == nil {
		return nil, &domain.InputError{Field: "user_profile", Reason: "is required"}
	}
	profile := *req.Profile

	channel := req.Channel
	if channel == "" {
		channel = ChannelHTTP
	}

	c, err := s.sessions.GetOrCreate(ctx, req.SessionID, &profile, func(ctx context.Context) (*domain.Chart, error) {
		return s.charts.Compute(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	// A state that could not be read is never overwritten.
	state, err := s.sessions.Load(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("Failed to load session state", "session_id", req.SessionID, "error", err)
		return nil, err
	}
	if state == nil {
		state = domain.NewSessionState(req.SessionID, &profile)
	}
	state.AttachChart(c)
	// The chart stays fixed; name and language follow the latest request.
	state.Profile = &profile
	if state.Chart == nil {
		s.logger.Warn("Session has no chart, continuing without one",
			"session_id", req.SessionID,
			"error", domain.ErrStateMissingChart)
	}

	priorResults := state.RAGResults
	priorKeys := state.ContextKeys
	state.Append(domain.RoleUser, message)
	s.logMessage(req.SessionID, channel, EventUserMessage, message, nil)

	decision := s.planner.Plan(ctx, message, state.Chart, priorResults, priorKeys)

	docs := []domain.RetrievedDocument{}
	keys := []string{}
	if decision.NeedsRetrieval {
		docs, keys = s.retriever.Retrieve(ctx, decision.Query, decision.Filter)
	}
	state.ReplaceRetrieval(decision, docs, keys)

	language := profile.Language()
	reply := s.composer.Compose(ctx, rag.ComposeInput{
		Message:   message,
		Chart:     state.Chart,
		Documents: docs,
		History:   state.History(),
		Language:  language,
		Reasoning: decision.Reasoning,
	})
	state.Append(domain.RoleAssistant, reply)
	s.logMessage(req.SessionID, channel, EventAssistantMessage, reply, map[string]any{
		"needs_retrieval": decision.NeedsRetrieval,
		"context_keys":    keys,
		"documents":       len(docs),
	})

	if err := s.sessions.Save(ctx, state); err != nil {
		s.logger.Error("Failed to persist session state", "session_id", req.SessionID, "error", err)
	}

	summary := state.Chart.Summary()
	return &TurnResult{
		SessionID:     req.SessionID,
		Response:      reply,
		ContextUsed:   keys,
		SunSign:       summary.SunSign,
		MoonSign:      summary.MoonSign,
		AscendantSign: summary.AscendantSign,
		DashaInfo:     rag.DashaInfo(state.Chart, s.now()),
	}, nil
}

// GetChart computes a chart without touching any session.
func (s *Service) GetChart(ctx context.Context, profile domain.UserProfile) (*domain.Chart, error) {
	return s.charts.Compute(ctx, profile)
}

// GetSessionChart returns the chart stored for sessionID.
func (s *Service) GetSessionChart(ctx context.Context, sessionID string) (*domain.Chart, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if state == nil || state.Chart == nil {
		return nil, domain.ErrSessionNotFound
	}
	return state.Chart, nil
}

// SessionInfo summarizes the stored state of sessionID.
func (s *Service) SessionInfo(ctx context.Context, sessionID string) (*domain.SessionInfo, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if state == nil {
		return nil, domain.ErrSessionNotFound
	}
	keys := state.ContextKeys
	if keys == nil {
		keys = []string{}
	}
	return &domain.SessionInfo{
		SessionID:      state.SessionID,
		UserProfile:    state.Profile,
		KundaliSummary: state.Chart.Summary(),
		MessageCount:   len(state.Messages),
		ContextKeys:    keys,
	}, nil
}

// Close flushes the conversation log.
func (s *Service) Close() {
	if err := s.convLog.Close(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) logMessage(sessionID, channel, eventType, content string, meta map[string]any) {
	direction := "inbound"
	if eventType == EventAssistantMessage {
		direction = "outbound"
	}
	s.convLog.Log(ConversationLogEvent{
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
