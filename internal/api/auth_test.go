package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testKey = "test-api-key-12345678"

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		cfg      AuthConfig
		path     string
		header   string
		wantCode int
	}{
		{"disabled", AuthConfig{}, "/api/jobs", "", http.StatusOK},
		{"valid key", AuthConfig{Enabled: true, APIKey: testKey}, "/api/jobs", testKey, http.StatusOK},
		{"valid query key", AuthConfig{Enabled: true, APIKey: testKey}, "/ws?api_key=" + testKey, "", http.StatusOK},
		{"missing key", AuthConfig{Enabled: true, APIKey: testKey}, "/api/jobs", "", http.StatusUnauthorized},
		{"wrong key", AuthConfig{Enabled: true, APIKey: testKey}, "/api/jobs", "wrong-key-123456789", http.StatusUnauthorized},
		{"case sensitive", AuthConfig{Enabled: true, APIKey: testKey}, "/api/jobs", strings.ToUpper(testKey), http.StatusUnauthorized},
		{"public root", AuthConfig{Enabled: true, APIKey: testKey}, "/", "", http.StatusOK},
		{"public health", AuthConfig{Enabled: true, APIKey: testKey}, "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := AuthMiddleware(tt.cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if called != (tt.wantCode == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if w.Code == http.StatusUnauthorized && !strings.Contains(w.Body.String(), "UNAUTHORIZED") {
				t.Errorf("body = %s, want UNAUTHORIZED code", w.Body.String())
			}
		})
	}
}

func TestValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{"disabled", AuthConfig{}, false},
		{"disabled with short key", AuthConfig{APIKey: "x"}, false},
		{"enabled", AuthConfig{Enabled: true, APIKey: testKey}, false},
		{"enabled without key", AuthConfig{Enabled: true}, true},
		{"enabled with short key", AuthConfig{Enabled: true, APIKey: "short"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAuthConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAuthConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
