package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler answers 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
})

func callWithKey(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		key      string
		header   string
		sent     string
		wantCode int
	}{
		{"mode none passes", "none", "secret", "X-API-Key", "", http.StatusOK},
		{"empty key passes", "apikey", "", "X-API-Key", "", http.StatusOK},
		{"correct key", "apikey", "supersecret", "X-API-Key", "supersecret", http.StatusOK},
		{"wrong key", "apikey", "supersecret", "X-API-Key", "wrong", http.StatusUnauthorized},
		{"missing header", "apikey", "supersecret", "X-API-Key", "", http.StatusUnauthorized},
		{"prefix of key", "apikey", "supersecret", "X-API-Key", "super", http.StatusUnauthorized},
		{"custom header", "apikey", "k", "X-Phimon-Key", "k", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIKeyMiddleware(tt.mode, tt.header, tt.key)(okHandler)
			rr := callWithKey(t, h, tt.header, tt.sent)
			if rr.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestAPIKeyMiddleware_HeaderCaseInsensitive(t *testing.T) {
	h := APIKeyMiddleware("apikey", "x-api-key", "secret")(okHandler)
	rr := callWithKey(t, h, "X-Api-Key", "secret")
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestAPIKeyMiddleware_RejectionBody(t *testing.T) {
	h := APIKeyMiddleware("apikey", "X-API-Key", "secret")(okHandler)
	rr := callWithKey(t, h, "X-API-Key", "nope")
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if body := rr.Body.String(); body != "{\"error\":\"invalid api key\"}\n" {
		t.Errorf("body: got %q", body)
	}
}
