package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteBearerChallenge(t *testing.T) {
	tests := []struct {
		name       string
		realm      string
		wantHeader string
	}{
		{
			name:       "plain realm",
			realm:      "soporify",
			wantHeader: `Bearer realm="soporify", error="invalid_token"`,
		},
		{
			name:       "realm with quotes",
			realm:      `so"porify`,
			wantHeader: `Bearer realm="so\"porify", error="invalid_token"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteBearerChallenge(w, tt.realm, "Log in again")

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %v, want %v", w.Code, http.StatusUnauthorized)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != tt.wantHeader {
				t.Errorf("WWW-Authenticate header = %q, want %q", got, tt.wantHeader)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if resp.Error != "unauthorized" || resp.Message != "Log in again" {
				t.Errorf("body = %+v", resp)
			}
		})
	}
}

func TestWriteUnauthorized(t *testing.T) {
	w := httptest.NewRecorder()

	WriteUnauthorized(w, "Test error")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %v, want %v", w.Code, http.StatusUnauthorized)
	}
	if header := w.Header().Get("WWW-Authenticate"); header != "" {
		t.Errorf("unexpected WWW-Authenticate header: %q", header)
	}
}

func TestWriteBadGateway(t *testing.T) {
	w := httptest.NewRecorder()

	WriteBadGateway(w, "spotify api: status 503")

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %v, want %v", w.Code, http.StatusBadGateway)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestEscapeQuotedString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no special characters", "simple-realm", "simple-realm"},
		{"with double quote", `realm"with"quotes`, `realm\"with\"quotes`},
		{"with backslash", `realm\with\backslash`, `realm\\with\\backslash`},
		{"with both", `realm\"mixed`, `realm\\\"mixed`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeQuotedString(tt.input); got != tt.want {
				t.Errorf("escapeQuotedString() = %q, want %q", got, tt.want)
			}
		})
	}
}
