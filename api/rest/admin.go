package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pokemcp/server/audit"
	"github.com/pokemcp/server/game/arena"
	"github.com/pokemcp/server/metrics"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/resource"
	"github.com/pokemcp/server/scheduler"
)

// Connections is the view of live WebSocket clients the admin API needs.
type Connections interface {
	Count() int
	KickClient(clientID int64) int
}

// Announcer broadcasts a system message to stream subscribers.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// AdminDeps groups the AdminHandler collaborators. Conns, Announcer and
// Audit may be nil.
type AdminDeps struct {
	DB        *gorm.DB
	Arena     *arena.Service
	Provider  *resource.Provider
	Sched     *scheduler.Scheduler
	Metrics   *metrics.Metrics
	Audit     *audit.Service
	Conns     Connections
	Announcer Announcer
	Logger    *zap.Logger
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	AdminDeps
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AdminHandler{AdminDeps: deps}
}

func (h *AdminHandler) record(c *gin.Context, action string, req, resp interface{}, err error) {
	if h.Audit == nil {
		return
	}
	e := audit.Entry{
		TraceID:   mw.GetTraceID(c),
		Action:    action,
		Transport: audit.TransportAdmin,
		Request:   req,
		Response:  resp,
		IP:        c.ClientIP(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.Audit.Log(e)
}

// Stats returns a snapshot of server counters.
// GET /api/admin/metrics/summary
func (h *AdminHandler) Stats(c *gin.Context) {
	summary, err := h.Metrics.Summary()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	online := 0
	if h.Conns != nil {
		online = h.Conns.Count()
	}
	var battles, clients int64
	h.DB.WithContext(c.Request.Context()).Model(&model.BattleRecord{}).Count(&battles)
	h.DB.WithContext(c.Request.Context()).Model(&model.APIClient{}).Count(&clients)
	c.JSON(http.StatusOK, gin.H{
		"metrics":         summary,
		"ws_connections":  online,
		"stored_battles":  battles,
		"api_clients":     clients,
		"scheduler_tasks": h.Sched.List(),
	})
}

// PruneBattles deletes battles older than the older_than duration.
// DELETE /api/admin/battles?older_than=720h
func (h *AdminHandler) PruneBattles(c *gin.Context) {
	age, err := time.ParseDuration(c.Query("older_than"))
	if err != nil || age <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a positive duration"})
		return
	}
	n, err := h.Arena.Prune(c.Request.Context(), age)
	h.record(c, "admin.prune", gin.H{"older_than": age.String()}, gin.H{"deleted": n}, err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// RefreshTypeChart rebuilds the type chart from PokeAPI.
// POST /api/admin/typechart/refresh
func (h *AdminHandler) RefreshTypeChart(c *gin.Context) {
	tc, err := h.Provider.RefreshTypeChart(c.Request.Context())
	h.record(c, "admin.typechart_refresh", nil, nil, err)
	if err != nil {
		h.Logger.Warn("type chart refresh failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": tc.Types()})
}

// SetClientStatus enables or disables an API client. Disabling also closes
// its live WebSocket connections.
// POST /api/admin/clients/:id/disable
func (h *AdminHandler) SetClientStatus(c *gin.Context) {
	clientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Disable bool `json:"disable"`
	}
	_ = c.ShouldBindJSON(&req)

	status := model.ClientStatusActive
	if req.Disable {
		status = model.ClientStatusDisabled
	}
	result := h.DB.WithContext(c.Request.Context()).
		Model(&model.APIClient{}).Where("id = ?", clientID).Update("status", status)
	h.record(c, "admin.client_status", gin.H{"client_id": clientID, "disable": req.Disable}, nil, result.Error)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}

	kicked := 0
	if req.Disable && h.Conns != nil {
		kicked = h.Conns.KickClient(clientID)
	}
	h.Logger.Info("admin changed client status",
		zap.Int64("client_id", clientID), zap.Int("status", status), zap.Int("kicked", kicked))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status, "kicked": kicked})
}

// Announce publishes a system announcement to SSE subscribers.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.Announcer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "announcements unavailable"})
		return
	}
	err := h.Announcer.Announce(c.Request.Context(), req.Message)
	h.record(c, "admin.announce", req, nil, err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered scheduler tasks with
// the next run of each cron job.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	next := gin.H{}
	for _, name := range h.Sched.List() {
		if t, ok := h.Sched.NextRun(name); ok {
			next[name] = t
		}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": h.Sched.List(), "next_run": next})
}

// AuditLog returns the newest audit entries.
// GET /api/admin/audit?action=&limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	if h.Audit == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []model.AuditLog{}})
		return
	}
	entries, err := h.Audit.Recent(c.Request.Context(), c.Query("action"), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
