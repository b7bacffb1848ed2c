package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pokemcp/server/game/arena"
	mw "github.com/pokemcp/server/middleware"
)

// BattleHandler serves the stored battle history.
type BattleHandler struct {
	arena  *arena.Service
	logger *zap.Logger
}

// NewBattleHandler creates a new BattleHandler.
func NewBattleHandler(svc *arena.Service, logger *zap.Logger) *BattleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHandler{arena: svc, logger: logger}
}

// List handles GET /api/battles?pokemon=&limit=&offset=&mine=1.
func (h *BattleHandler) List(c *gin.Context) {
	f := arena.HistoryFilter{
		Pokemon: c.Query("pokemon"),
		Limit:   queryInt(c, "limit", 20),
		Offset:  queryInt(c, "offset", 0),
	}
	if c.Query("mine") == "1" || c.Query("mine") == "true" {
		id, ok := mw.GetClientID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		f.ClientID = &id
	}
	list, total, err := h.arena.History(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list battles failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battles": list, "total": total})
}

// Recent handles GET /api/battles/recent?n=.
func (h *BattleHandler) Recent(c *gin.Context) {
	list, err := h.arena.Recent(c.Request.Context(), queryInt(c, "n", 0))
	if err != nil {
		h.logger.Error("recent battles failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battles": list})
}

// Get handles GET /api/battles/:id.
func (h *BattleHandler) Get(c *gin.Context) {
	rec, err := h.arena.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, arena.ErrBattleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "battle not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Leaderboard handles GET /api/leaderboard?n=.
func (h *BattleHandler) Leaderboard(c *gin.Context) {
	rows, err := h.arena.Leaderboard(c.Request.Context(), queryInt(c, "n", 10))
	if err != nil {
		h.logger.Error("leaderboard failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
