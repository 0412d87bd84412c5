package domain

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is everything persisted for a conversation thread.
type SessionState struct {
	SessionID    string              `json:"session_id"`
	Profile      *UserProfile        `json:"user_profile,omitempty"`
	Chart        *Chart              `json:"chart,omitempty"`
	Messages     []Message           `json:"messages"`
	LastDecision *RetrievalDecision  `json:"last_decision,omitempty"`
	RAGResults   []RetrievedDocument `json:"rag_results"`
	ContextKeys  []string            `json:"context_keys"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewSessionState creates an empty state for a never-seen session id.
func NewSessionState(sessionID string, profile *UserProfile) *SessionState {
	now := time.Now()
	return &SessionState{
		SessionID: sessionID,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AttachChart sets the chart if none is present. It returns false when a
// chart was already attached, in which case the existing one is kept.
func (s *SessionState) AttachChart(c *Chart) bool {
	if s.Chart != nil || c == nil {
		return false
	}
	s.Chart = c
	return true
}

// Append adds a message to the history.
func (s *SessionState) Append(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// ReplaceRetrieval overwrites the retrieval fields for the current turn.
func (s *SessionState) ReplaceRetrieval(decision RetrievalDecision, docs []RetrievedDocument, keys []string) {
	s.LastDecision = &decision
	s.RAGResults = docs
	s.ContextKeys = keys
}

// History returns the messages before the latest one.
func (s *SessionState) History() []Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[:len(s.Messages)-1]
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	SessionID      string       `json:"session_id"`
	UserProfile    *UserProfile `json:"user_profile,omitempty"`
	KundaliSummary ChartSummary `json:"kundali_summary"`
	MessageCount   int          `json:"message_count"`
	ContextKeys    []string     `json:"context_keys"`
}
