package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
)

func newAdminRouter(t *testing.T, h *harness, store ratelimit.CounterStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := NewAdminAPI(h.limiter, h.lists, h.registry, store, zap.NewNop())
	api.RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, adminResponse) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp adminResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestAdminHealth(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)

	w, resp := doJSON(t, router, http.MethodGet, "/admin/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestAdminHealthDegradedWhenStoreDown(t *testing.T) {
	h := newHarness(t, erroringStore{}, DefaultDetectorConfig())
	router := newAdminRouter(t, h, erroringStore{})

	w, resp := doJSON(t, router, http.MethodGet, "/admin/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data, _ := resp.Data.(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
}

func TestAdminBanLifecycle(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)

	w, resp := doJSON(t, router, http.MethodPost, "/admin/bans",
		`{"identifier":"ip:1.2.3.4","reason":"abuse","duration":"1h"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, resp.Success)

	banned, _ := h.lists.IsBlacklisted(context.Background(), "ip:1.2.3.4")
	assert.True(t, banned)

	w, _ = doJSON(t, router, http.MethodDelete, "/admin/bans/ip:1.2.3.4", "")
	require.Equal(t, http.StatusOK, w.Code)

	banned, _ = h.lists.IsBlacklisted(context.Background(), "ip:1.2.3.4")
	assert.False(t, banned)

	w, _ = doJSON(t, router, http.MethodDelete, "/admin/bans/ip:1.2.3.4", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminBanValidation(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)

	w, _ := doJSON(t, router, http.MethodPost, "/admin/bans", `{"identifier":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/admin/bans",
		`{"identifier":"x","duration":"-5m"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminWhitelistLifecycle(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)

	w, _ := doJSON(t, router, http.MethodPost, "/admin/whitelist",
		`{"identifier":"ip:10.0.0.1","note":"partner","expires_in":"24h"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, h.lists.IsWhitelisted(context.Background(), "ip:10.0.0.1"))

	w, _ = doJSON(t, router, http.MethodDelete, "/admin/whitelist/ip:10.0.0.1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, h.lists.IsWhitelisted(context.Background(), "ip:10.0.0.1"))
}

func TestAdminUpdateLimit(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)

	w, _ := doJSON(t, router, http.MethodPut, "/admin/limits/search",
		`{"algorithm":"token_bucket","capacity":20,"refill_rate":5,"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	cfg := h.registry.Get("search")
	assert.Equal(t, ratelimit.AlgorithmTokenBucket, cfg.Algorithm)
	assert.Equal(t, float64(20), cfg.Capacity)

	w, _ = doJSON(t, router, http.MethodPut, "/admin/limits/search",
		`{"algorithm":"token_bucket","capacity":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminStatisticsAndCleanup(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	h := newHarness(t, store, DefaultDetectorConfig())
	router := newAdminRouter(t, h, store)
	ctx := context.Background()

	require.NoError(t, h.lists.Ban(ctx, "expired", "old", "ops", -time.Minute))
	require.NoError(t, h.lists.Ban(ctx, "current", "new", "ops", time.Hour))

	w, resp := doJSON(t, router, http.MethodGet, "/admin/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)
	data, _ := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["active_bans"])

	w, _ = doJSON(t, router, http.MethodPost, "/admin/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)

	var expired BanRecord
	require.NoError(t, h.db.Where("identifier = ?", "expired").First(&expired).Error)
	assert.False(t, expired.IsActive)
}
