package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/api"
	"github.com/ashureev/kundali-rag/internal/identity"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// TurnHandler is the turn entry point used by the handlers.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// Handler serves chat turns over HTTP and WebSocket.
type Handler struct {
	turns          TurnHandler
	turnTimeout    time.Duration
	maxBodySize    int64
	originPatterns []string
}

// NewHandler creates a chat handler. turnTimeout bounds each turn.
func NewHandler(turns TurnHandler, turnTimeout time.Duration, allowedOrigins []string) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = 60 * time.Second
	}
	return &Handler{
		turns:          turns,
		turnTimeout:    turnTimeout,
		maxBodySize:    defaultMaxRequestBodySize,
		originPatterns: originPatterns(allowedOrigins),
	}
}

// RegisterRoutes registers chat routes. The session id middleware applies
// to both endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Post("/v1/chat", h.HandleChat)
		r.Get("/v1/ws/chat", h.HandleWebSocket)
	})
}

// HandleChat handles POST /v1/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := api.DecodeJSON(w, r, h.maxBodySize, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	h.resolveSession(w, r, &req)
	req.Channel = ChannelHTTP

	slog.Info("Chat request",
		"session_id", req.SessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"ip", identity.IPFromRequest(r),
		"message_length", len(req.Message),
	)

	ctx, cancel := context.WithTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	res, err := h.turns.HandleTurn(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			api.Error(w, http.StatusGatewayTimeout, "turn timed out")
			return
		}
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

// resolveSession prefers the body's session id over the one injected by
// the identity middleware, and echoes the chosen id.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request, req *TurnRequest) {
	if sid := identity.SanitizeSessionID(req.SessionID); sid != "" {
		req.SessionID = sid
	} else {
		req.SessionID = identity.SessionIDFromContext(r.Context())
	}
	w.Header().Set(identity.SessionHeaderName, req.SessionID)
}

// HandleWebSocket handles GET /v1/ws/chat. Each text frame carries a
// TurnRequest and is answered with a TurnResult or {"error": ...}.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	defaultSession := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket chat connection request", "session_id", defaultSession, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.maxBodySize)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", defaultSession)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var req TurnRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := writeJSON(ctx, ws, map[string]string{"error": "invalid message"}); err != nil {
				return
			}
			continue
		}
		if sid := identity.SanitizeSessionID(req.SessionID); sid != "" {
			req.SessionID = sid
		} else {
			req.SessionID = defaultSession
		}
		req.Channel = ChannelWebSocket

		if err := writeJSON(ctx, ws, h.runTurn(ctx, req)); err != nil {
			slog.Debug("Failed to write websocket reply", "error", err)
			return
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, req TurnRequest) any {
	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	res, err := h.turns.HandleTurn(turnCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return map[string]any{"error": "turn timed out", "status": http.StatusGatewayTimeout}
		}
		status := api.StatusFromError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			slog.Error("WebSocket turn failed", "session_id", req.SessionID, "error", err)
			msg = "internal server error"
		}
		return map[string]any{"error": msg, "status": status}
	}
	return res
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func originPatterns(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return []string{"*"}
		}
		u := strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		out = append(out, u)
	}
	return out
}
