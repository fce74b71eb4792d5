package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// okHandler answers 200 so tests can tell admitted requests from rejected ones.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		apiKey    string
		header    string
		want      int
		challenge string
	}{
		{"disabled", "", "", http.StatusOK, ""},
		{"disabled ignores header", "", "Bearer anything", http.StatusOK, ""},
		{"missing", "s3cret", "", http.StatusUnauthorized, `Bearer realm="pdfrag"`},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized, `Bearer realm="pdfrag"`},
		{"empty token", "s3cret", "Bearer   ", http.StatusUnauthorized, `Bearer realm="pdfrag"`},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized, `Bearer realm="pdfrag", error="invalid_token"`},
		{"prefix of key", "s3cret", "Bearer s3c", http.StatusUnauthorized, `Bearer realm="pdfrag", error="invalid_token"`},
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK, ""},
		{"scheme case", "s3cret", "bEaReR s3cret", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			requireBearer(tt.apiKey)(okHandler).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != tt.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.challenge)
			}
			if tt.want == http.StatusUnauthorized {
				var body errorResponse
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
					t.Errorf("expected JSON error body, got %v", err)
				}
				if strings.Contains(body.Error, "nope") {
					t.Error("presented token must not be echoed")
				}
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}

func TestServer_AuthOnlyGuardsV1(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false, func(c *Config) { c.APIKey = "k" })

	for path, want := range map[string]int{
		"/v1/documents": http.StatusUnauthorized,
		"/api/health":   http.StatusOK,
		"/metrics":      http.StatusOK,
	} {
		w := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("GET %s = %d, want %d", path, w.Code, want)
		}
	}
}
