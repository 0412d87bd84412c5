// Package agent runs conversation turns and exposes them over HTTP and
// WebSocket.
package agent

import (
	"github.com/ashureev/kundali-rag/internal/domain"
)

// TurnRequest is one user message for a session.
type TurnRequest struct {
	SessionID string              `json:"session_id"`
	Message   string              `json:"message"`
	Profile   *domain.UserProfile `json:"user_profile"`
	Channel   string              `json:"-"`
}

// TurnResult is the reply for a turn.
type TurnResult struct {
	SessionID     string   `json:"session_id"`
	Response      string   `json:"response"`
	ContextUsed   []string `json:"context_used"`
	SunSign       string   `json:"sun_sign"`
	MoonSign      string   `json:"moon_sign"`
	AscendantSign string   `json:"ascendant_sign"`
	DashaInfo     string   `json:"dasha_info"`
}

// Conversation log channels and event types.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"

	EventUserMessage      = "chat_user_message"
	EventAssistantMessage = "chat_assistant_message"
)
