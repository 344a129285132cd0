package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
)

func newLimitedRouter(t *testing.T, h *harness, key KeyFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", Middleware(h.limiter, key), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func TestMiddlewareSetsRateLimitHeaders(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryStore(), DefaultDetectorConfig())
	h.registry.Set("ping", &ratelimit.LimitConfig{
		Algorithm: ratelimit.AlgorithmFixedWindow,
		Limit:     2,
		Window:    time.Hour,
		Enabled:   true,
	})
	router := newLimitedRouter(t, h, IPKeyFunc("ping"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, ratelimit.AlgorithmFixedWindow, w.Header().Get("X-RateLimit-Algorithm"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryStore(), DefaultDetectorConfig())
	h.registry.Set("ping", &ratelimit.LimitConfig{
		Algorithm: ratelimit.AlgorithmFixedWindow,
		Limit:     1,
		Window:    time.Hour,
		Enabled:   true,
	})
	router := newLimitedRouter(t, h, IPKeyFunc("ping"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestMiddlewareForbidsBanned(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryStore(), DefaultDetectorConfig())
	router := newLimitedRouter(t, h, IPKeyFunc("general"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	require.NoError(t, h.lists.Ban(context.Background(), "ip:192.0.2.1", "abuse", "ops", time.Hour))
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "temporarily banned")
}

func TestAPIKeyFuncPrefersHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key := APIKeyFunc("api")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-API-Key", "k123")
	id, limitType := key(c)
	assert.Equal(t, "api:k123", id)
	assert.Equal(t, "api", limitType)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Bearer tok456")
	id, _ = key(c)
	assert.Equal(t, "api:tok456", id)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "198.51.100.7:9999"
	id, _ = key(c)
	assert.Equal(t, "ip:198.51.100.7", id)
}
