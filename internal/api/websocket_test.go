package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"barter/internal/config"
)

func TestOriginMatchesAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed string
		want    bool
	}{
		{name: "exact_match", origin: "https://example.com", allowed: "https://example.com", want: true},
		{name: "wildcard_prefix_match", origin: "app://desktop/main", allowed: "app://*", want: true},
		{name: "wildcard_prefix_miss", origin: "https://example.com", allowed: "app://*", want: false},
		{name: "exact_miss", origin: "https://evil.com", allowed: "https://example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, originMatchesAllowed(tt.origin, tt.allowed))
		})
	}
}

func TestCheckOriginAllowsLoopbackAndConfiguredOrigins(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, config.WebSocketConfig{
		AllowedOrigins: []string{"https://example.com", "app://*"},
	})

	withOrigin := func(origin string) bool {
		req := httptest.NewRequest("GET", "http://localhost/ws", nil)
		req.Header.Set("Origin", origin)
		return handler.checkOrigin(req)
	}

	assert.True(t, withOrigin("http://127.0.0.1:5173"), "loopback origin")
	assert.True(t, withOrigin("https://example.com"), "configured origin")
	assert.False(t, withOrigin("https://evil.com"), "disallowed origin")
}

func TestCheckOriginAllowsMissingOrigin(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, config.WebSocketConfig{})

	req := httptest.NewRequest("GET", "http://localhost/ws", nil)
	assert.True(t, handler.checkOrigin(req))
}
