package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pokemcp/server/audit"
	"github.com/pokemcp/server/game/arena"
	mw "github.com/pokemcp/server/middleware"
)

// ToolHandler exposes the arena tools over REST.
type ToolHandler struct {
	arena  *arena.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewToolHandler creates a new ToolHandler. auditSvc may be nil.
func NewToolHandler(svc *arena.Service, auditSvc *audit.Service, logger *zap.Logger) *ToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolHandler{arena: svc, audit: auditSvc, logger: logger}
}

// List handles GET /api/tools.
func (h *ToolHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.arena.ToolCatalog()})
}

// Call handles POST /api/tools/:name. The body is the tool's argument object.
func (h *ToolHandler) Call(c *gin.Context) {
	name := c.Param("name")
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arguments must be a JSON object"})
		return
	}

	inv := arena.Invocation{Transport: audit.TransportREST}
	if id, ok := mw.GetClientID(c); ok {
		inv.ClientID = &id
	}

	start := time.Now()
	result, err := h.arena.CallTool(c.Request.Context(), name, args, inv)

	if h.audit != nil {
		entry := audit.Entry{
			TraceID:    mw.GetTraceID(c),
			ClientID:   inv.ClientID,
			Username:   mw.GetUsername(c),
			Action:     "tool." + name,
			Transport:  audit.TransportREST,
			Request:    args,
			Response:   result,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.Log(entry)
	}

	if err != nil {
		c.JSON(ToolErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ToolErrorStatus maps arena errors to HTTP status codes.
func ToolErrorStatus(err error) int {
	switch {
	case errors.Is(err, arena.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, arena.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, arena.ErrUnknownTool), errors.Is(err, arena.ErrBattleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
