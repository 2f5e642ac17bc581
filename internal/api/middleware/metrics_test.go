package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/rooms/dsa/messages": "/rooms/:id/messages",
		"/dm/u2/messages":     "/dm/:id/messages",
		"/stream/rooms/dsa":   "/stream/rooms/:id",
		"/stream/dm/u2":       "/stream/dm/:id",
		"/stream/inbox":       "/stream/inbox",
		"/users/u9":           "/users/:id",
		"/users/me":           "/users/me",
		"/users":              "/users",
		"/rooms":              "/rooms",
		"/health":             "/health",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestStatusWriterSupportsStreamUpgrades(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	wrapped := middleware.NewWrapResponseWriter(sw, 1)

	_, ok := wrapped.(http.Hijacker)
	assert.True(t, ok, "request logging must not hide Hijack")
}
