package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	t.Run("listed origin is echoed", func(t *testing.T) {
		// Arrange
		handler := CORSMiddleware([]string{"https://console.example.in"})(next)
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
		req.Header.Set("Origin", "https://console.example.in")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, "https://console.example.in", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("unlisted origin gets no grant", func(t *testing.T) {
		// Arrange
		handler := CORSMiddleware([]string{"https://console.example.in"})(next)
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight is answered without reaching the handler", func(t *testing.T) {
		// Arrange
		reached = false
		handler := CORSMiddleware(nil)(next)
		req := httptest.NewRequest(http.MethodOptions, "/api/dispatch/forward", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.False(t, reached)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/dispatch/requests/4211/select": "/api/dispatch/requests/{id}/select",
		"/api/dispatch/requests/7/audit":     "/api/dispatch/requests/{id}/audit",
		"/api/dispatch/view":                 "/api/dispatch/view",
		"/health":                            "/health",
		"/api/dispatch/requests/abc/address": "/api/dispatch/requests/abc/address",
	}

	for path, want := range tests {
		assert.Equal(t, want, routeLabel(path), path)
	}
}

func TestStatusRecorder(t *testing.T) {
	// Arrange
	rec := httptest.NewRecorder()
	var flushed bool
	handler := ObservabilityMiddleware(nil)(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.WriteHeader(http.StatusPreconditionFailed)
		flusher.Flush()
		flushed = true
	})))

	// Act
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dispatch/forward", nil))

	// Assert
	assert.True(t, flushed)
	assert.True(t, rec.Flushed)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}
