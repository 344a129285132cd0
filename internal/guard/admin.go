// admin.go: Administrative HTTP surface for the admission-control core
package guard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
)

// AdminAPI exposes statistics, list management and limit-type inspection.
type AdminAPI struct {
	limiter  *Limiter
	lists    *ListStore
	registry *ratelimit.ConfigRegistry
	store    ratelimit.CounterStore
	logger   *zap.Logger
}

// NewAdminAPI creates the admin surface.
func NewAdminAPI(limiter *Limiter, lists *ListStore, registry *ratelimit.ConfigRegistry, store ratelimit.CounterStore, logger *zap.Logger) *AdminAPI {
	return &AdminAPI{
		limiter:  limiter,
		lists:    lists,
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// adminResponse is the standard admin envelope.
type adminResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, adminResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, adminResponse{
		Success:   false,
		Error:     message,
		Timestamp: time.Now(),
	})
}

// RegisterRoutes mounts the admin endpoints under /admin.
func (api *AdminAPI) RegisterRoutes(r gin.IRouter) {
	admin := r.Group("/admin")
	admin.GET("/health", api.handleHealth)
	admin.GET("/statistics", api.handleStatistics)
	admin.GET("/limits", api.handleListLimits)
	admin.PUT("/limits/:name", api.handleUpdateLimit)
	admin.GET("/bans", api.handleListBans)
	admin.POST("/bans", api.handleBan)
	admin.DELETE("/bans/:identifier", api.handleUnban)
	admin.POST("/whitelist", api.handleWhitelist)
	admin.DELETE("/whitelist/:identifier", api.handleUnwhitelist)
	admin.POST("/cleanup", api.handleCleanup)
}

func (api *AdminAPI) handleHealth(c *gin.Context) {
	health := gin.H{"status": "healthy", "store": "connected"}
	status := http.StatusOK
	if err := api.store.Ping(c.Request.Context()); err != nil {
		// Degraded, not down: checks fail open without the store.
		health["status"] = "degraded"
		health["store"] = err.Error()
	}
	ok(c, status, "health check completed", health)
}

func (api *AdminAPI) handleStatistics(c *gin.Context) {
	stats, err := api.limiter.GetStatistics(c.Request.Context())
	if err != nil {
		api.logger.Error("statistics query failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "statistics unavailable")
		return
	}
	ok(c, http.StatusOK, "statistics retrieved", stats)
}

func (api *AdminAPI) handleListLimits(c *gin.Context) {
	ok(c, http.StatusOK, "limit types retrieved", api.registry.List())
}

func (api *AdminAPI) handleUpdateLimit(c *gin.Context) {
	var cfg ratelimit.LimitConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := ratelimit.ValidateLimitConfig(&cfg); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	name := c.Param("name")
	api.registry.Set(name, &cfg)
	ok(c, http.StatusOK, "limit type updated", gin.H{"name": name})
}

func (api *AdminAPI) handleListBans(c *gin.Context) {
	bans, err := api.lists.ActiveBans(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "ban query failed")
		return
	}
	ok(c, http.StatusOK, "active bans retrieved", bans)
}

type banRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Reason     string `json:"reason"`
	BannedBy   string `json:"banned_by"`
	Duration   string `json:"duration" binding:"required"`
}

func (api *AdminAPI) handleBan(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "identifier and duration are required")
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		fail(c, http.StatusBadRequest, "invalid duration")
		return
	}
	bannedBy := req.BannedBy
	if bannedBy == "" {
		bannedBy = "admin"
	}
	if err := api.lists.Ban(c.Request.Context(), req.Identifier, req.Reason, bannedBy, duration); err != nil {
		api.logger.Error("manual ban failed", zap.String("identifier", req.Identifier), zap.Error(err))
		fail(c, http.StatusInternalServerError, "ban failed")
		return
	}
	ok(c, http.StatusCreated, "identifier banned", gin.H{"identifier": req.Identifier})
}

func (api *AdminAPI) handleUnban(c *gin.Context) {
	identifier := c.Param("identifier")
	if err := api.lists.Unban(c.Request.Context(), identifier); err != nil {
		fail(c, http.StatusNotFound, "no active ban for identifier")
		return
	}
	ok(c, http.StatusOK, "ban lifted", gin.H{"identifier": identifier})
}

type whitelistRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Note       string `json:"note"`
	AddedBy    string `json:"added_by"`
	ExpiresIn  string `json:"expires_in"`
}

func (api *AdminAPI) handleWhitelist(c *gin.Context) {
	var req whitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "identifier is required")
		return
	}
	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			fail(c, http.StatusBadRequest, "invalid expires_in")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}
	if err := api.lists.Allow(c.Request.Context(), req.Identifier, req.Note, req.AddedBy, expiresAt); err != nil {
		api.logger.Error("whitelist add failed", zap.String("identifier", req.Identifier), zap.Error(err))
		fail(c, http.StatusInternalServerError, "whitelist add failed")
		return
	}
	ok(c, http.StatusCreated, "identifier whitelisted", gin.H{"identifier": req.Identifier})
}

func (api *AdminAPI) handleUnwhitelist(c *gin.Context) {
	identifier := c.Param("identifier")
	if err := api.lists.Disallow(c.Request.Context(), identifier); err != nil {
		fail(c, http.StatusNotFound, "no active whitelist entry for identifier")
		return
	}
	ok(c, http.StatusOK, "whitelist entry removed", gin.H{"identifier": identifier})
}

func (api *AdminAPI) handleCleanup(c *gin.Context) {
	if err := api.limiter.Cleanup(c.Request.Context()); err != nil {
		api.logger.Error("cleanup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "cleanup failed")
		return
	}
	ok(c, http.StatusOK, "cleanup completed", nil)
}
