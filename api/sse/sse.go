package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/config"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/model"
)

const announceChannel = "announce"

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger, keepalive: 30 * time.Second}
}

// ServeSSE handles GET /sse?token=<jwt>[&pokemon=name].
// It streams completed battles as "battle" events and system announcements
// as "announce" events. With pokemon set only battles involving it are sent.
func (h *Handler) ServeSSE(c *gin.Context) {
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.c, mw.BearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	filter := strings.ToLower(strings.TrimSpace(c.Query("pokemon")))

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, cache.ChannelBattles, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"client_id\":%d}\n\n", claims.ClientID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "battle"
			if msg.Channel == announceChannel {
				event = "announce"
			} else if filter != "" && !involves(msg.Payload, filter) {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func involves(payload, name string) bool {
	var s model.BattleSummary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return false
	}
	return s.Pokemon1 == name || s.Pokemon2 == name
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	raw, err := json.Marshal(map[string]interface{}{"message": message, "at": time.Now().UTC()})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, announceChannel, string(raw))
}
