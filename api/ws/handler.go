package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/config"
	mw "github.com/pokemcp/server/middleware"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(c cache.Cache, sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		cache:  c,
		sec:    sec,
		hub:    hub,
		router: router,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     OriginChecker(sec.AllowedOrigins),
	}
	return h
}

// OriginChecker accepts requests whose Origin is in allowed. An empty list
// allows all; requests without an Origin header (non-browser clients) pass.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.cache, mw.BearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessage)

	sess := NewSession(claims.ClientID, claims.Username, claims.ID, conn, h.logger)
	h.hub.Register(sess)

	// Blocks until the connection closes.
	h.readPump(sess)
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *Session) {
	defer func() {
		s.Close()
		h.hub.Unregister(s)
		h.logger.Info("ws client disconnected", zap.Int64("client_id", s.ClientID))
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("client_id", s.ClientID),
					zap.Error(err))
			}
			return
		}
		if s.IsClosed() {
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}
