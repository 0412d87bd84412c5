package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareSessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		header        string
		query         string
		want          string
		wantGenerated bool
	}{
		{name: "header", header: "abc-123", query: "other", want: "abc-123"},
		{name: "query fallback", query: "q-1", want: "q-1"},
		{name: "generated", wantGenerated: true},
		{name: "invalid header", header: "bad id!", wantGenerated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotID string
			var gotGenerated bool
			h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotID = SessionIDFromContext(r.Context())
				gotGenerated = GeneratedFromContext(r.Context())
			}))

			target := "/v1/chat"
			if tt.query != "" {
				target += "?session_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodPost, target, nil)
			if tt.header != "" {
				req.Header.Set(SessionHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if gotGenerated != tt.wantGenerated {
				t.Fatalf("generated = %v, want %v", gotGenerated, tt.wantGenerated)
			}
			if !tt.wantGenerated && gotID != tt.want {
				t.Fatalf("session id = %q, want %q", gotID, tt.want)
			}
			if gotID == "" {
				t.Fatal("session id should never be empty")
			}
			if echoed := w.Header().Get(SessionHeaderName); echoed != gotID {
				t.Fatalf("echoed header = %q, want %q", echoed, gotID)
			}
		})
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	if got := SanitizeSessionID("  s-1  "); got != "s-1" {
		t.Fatalf("SanitizeSessionID() = %q", got)
	}
	if got := SanitizeSessionID("../etc/passwd"); got != "" {
		t.Fatalf("SanitizeSessionID(path) = %q, want empty", got)
	}
}
