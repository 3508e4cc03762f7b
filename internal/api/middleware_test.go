package api

import (
	"net/http/httptest"
	"testing"
)

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"none", nil, ""},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, "secret"},
		{"bearer lowercase", map[string]string{"Authorization": "bearer  secret "}, "secret"},
		{"bare authorization", map[string]string{"Authorization": "secret"}, "secret"},
		{"x-api-key", map[string]string{"X-API-Key": " secret"}, "secret"},
		{"authorization wins", map[string]string{"Authorization": "Bearer one", "X-API-Key": "two"}, "one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/templates", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := apiKey(req); got != tt.want {
				t.Errorf("apiKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		got  string
		want string
		ok   bool
	}{
		{"secret", "secret", true},
		{"secret", "other", false},
		{"", "secret", false},
		{"", "", false},
		{"secre", "secret", false},
	}

	for _, tt := range tests {
		if ok := validKey(tt.got, tt.want); ok != tt.ok {
			t.Errorf("validKey(%q, %q) = %v, want %v", tt.got, tt.want, ok, tt.ok)
		}
	}
}
