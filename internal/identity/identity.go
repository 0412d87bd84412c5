// Package identity resolves the conversation session id of a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// SessionHeaderName carries the session id in requests and responses.
	SessionHeaderName = "X-Session-ID"
	// SessionQueryParam is the query fallback for clients that cannot set headers.
	SessionQueryParam = "session_id"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	generatedKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// GeneratedFromContext reports whether the middleware minted the session id.
func GeneratedFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(generatedKey).(bool)
	return v
}

// WithSessionID returns a context carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// NewSessionID mints a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}

// SanitizeSessionID trims id and returns "" when it is not a valid id.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return SanitizeSessionID(sid)
}

// Middleware injects the request's session id, taken from the X-Session-ID
// header or the session_id query parameter, and mints a new one when
// neither is present. The id is echoed in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		generated := false
		if sessionID == "" {
			sessionID = NewSessionID()
			generated = true
		}

		w.Header().Set(SessionHeaderName, sessionID)
		ctx := WithSessionID(r.Context(), sessionID)
		ctx = context.WithValue(ctx, generatedKey, generated)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
