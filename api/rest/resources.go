package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pokemcp/server/resource"
)

// ResourceHandler exposes the resource registry over REST.
type ResourceHandler struct {
	registry *resource.Registry
	logger   *zap.Logger
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(registry *resource.Registry, logger *zap.Logger) *ResourceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceHandler{registry: registry, logger: logger}
}

// List handles GET /api/resources.
func (h *ResourceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": h.registry.List(c.Request.Context())})
}

// Read handles GET /api/resources/read?uri=pokemon://pikachu.
func (h *ResourceHandler) Read(c *gin.Context) {
	uri := strings.TrimSpace(c.Query("uri"))
	if uri == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}
	h.read(c, uri)
}

// Pokemon handles GET /api/pokemon/:name, shorthand for pokemon://{name}.
func (h *ResourceHandler) Pokemon(c *gin.Context) {
	h.read(c, "pokemon://"+c.Param("name"))
}

func (h *ResourceHandler) read(c *gin.Context, uri string) {
	content, err := h.registry.Read(c.Request.Context(), uri)
	if err != nil {
		status := ResourceErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("resource read failed", zap.String("uri", uri), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, content)
}

// ResourceErrorStatus maps registry errors to HTTP status codes.
func ResourceErrorStatus(err error) int {
	switch {
	case errors.Is(err, resource.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resource.ErrUnknownResource), errors.Is(err, resource.ErrEmptyName):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
