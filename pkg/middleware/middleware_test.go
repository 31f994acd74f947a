package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// RequestContext
// =============================================================================

func TestRequestContext_PropagatesHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RequestContext())

	var gotTrace, gotCorr string
	r.GET("/ping", func(c *gin.Context) {
		gotTrace = logger.TraceIDFromContext(c.Request.Context())
		gotCorr = logger.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("заголовки из запроса", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderTraceID, "trace-abc")
		req.Header.Set(HeaderCorrelationID, "corr-xyz")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "trace-abc", gotTrace)
		assert.Equal(t, "corr-xyz", gotCorr)
		assert.Equal(t, "trace-abc", w.Header().Get(HeaderTraceID))
	})

	t.Run("X-Request-ID как trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		r.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "req-1", gotTrace)
		assert.Equal(t, "req-1", gotCorr)
	})

	t.Run("генерация id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, gotTrace)
		assert.Equal(t, gotTrace, w.Header().Get(HeaderTraceID))
	})
}

// =============================================================================
// Recovery
// =============================================================================

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, httpx.CodeInternal, resp.Error)
	assert.NotContains(t, w.Body.String(), "boom")
}

// =============================================================================
// RateLimiter
// =============================================================================

func newLimitedRouter(rdb *redis.Client, limit int) *gin.Engine {
	r := gin.New()
	r.Use(NewRateLimiter(rdb, "test", limit, time.Minute).Handle())
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksExcessRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := newLimitedRouter(rdb, 3)

	for i := 0; i < 3; i++ {
		w := doRequest(r, "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code, "запрос %d должен пройти", i+1)
	}

	w := doRequest(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	t.Run("другой IP не затронут", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2").Code)
	})

	t.Run("окно истекло", func(t *testing.T) {
		mr.FastForward(61 * time.Second)
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1").Code)
	})
}

func TestRateLimiter_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	r := newLimitedRouter(rdb, 1)

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1").Code)
}

// =============================================================================
// SecurityHeaders / CORS
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.POST("/api/v1/policies/quote", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("preflight разрешённого origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/policies/quote", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("чужой origin отклонён", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/policies/quote", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
