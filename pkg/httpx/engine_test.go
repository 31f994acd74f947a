package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_Probes(t *testing.T) {
	tests := []struct {
		name       string
		readiness  func(context.Context) error
		path       string
		wantStatus int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"readyz без проверки", nil, "/readyz", http.StatusOK},
		{"readyz с ошибкой", func(context.Context) error { return errors.New("db down") }, "/readyz", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(EngineConfig{Service: "test", Readiness: tt.readiness})

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestNewEngine_NoRoute(t *testing.T) {
	engine := NewEngine(EngineConfig{Service: "test"})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeNotFound, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestNewEngine_MiddlewareOrder(t *testing.T) {
	var order []string
	engine := NewEngine(EngineConfig{
		Service: "test",
		Middleware: []gin.HandlerFunc{
			func(c *gin.Context) { order = append(order, "first"); c.Next() },
			func(c *gin.Context) { order = append(order, "second"); c.Next() },
		},
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, []string{"first", "second"}, order)
}
