package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/pokemcp/server/cache"
)

// TypeBattleCompleted is pushed to subscribed sessions for every stored battle.
const TypeBattleCompleted = "battle_completed"

// Hub maintains the registry of live sessions. A client may hold several.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	logger   *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// Register adds a session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("ws session registered",
		zap.Int64("client_id", s.ClientID),
		zap.String("session_id", s.SessionID))
}

// Unregister removes a session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.logger.Info("ws session unregistered", zap.Int64("client_id", s.ClientID))
}

// Count returns the number of currently connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// KickClient closes every session of clientID and returns how many there were.
func (h *Hub) KickClient(clientID int64) int {
	n := 0
	for _, s := range h.snapshot() {
		if s.ClientID == clientID {
			s.Close()
			n++
		}
	}
	if n > 0 {
		h.logger.Info("ws client kicked", zap.Int64("client_id", clientID), zap.Int("sessions", n))
	}
	return n
}

// CloseAll closes every session, used on shutdown.
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		s.Close()
	}
}

// BroadcastSubscribed sends a pre-encoded packet to sessions subscribed to
// battle events. Slow sessions drop the packet rather than block.
func (h *Hub) BroadcastSubscribed(data []byte) int {
	n := 0
	for _, s := range h.snapshot() {
		if !s.Subscribed() {
			continue
		}
		s.SendRaw(data)
		n++
	}
	return n
}

// RelayBattles forwards the battles channel to subscribed sessions until ctx
// is done.
func (h *Hub) RelayBattles(ctx context.Context, ps cache.PubSub) error {
	msgs, unsubscribe, err := ps.Subscribe(ctx, cache.ChannelBattles)
	if err != nil {
		return err
	}
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				data, err := json.Marshal(&Packet{Type: TypeBattleCompleted, Payload: json.RawMessage(msg.Payload)})
				if err != nil {
					h.logger.Warn("dropping malformed battle event", zap.Error(err))
					continue
				}
				h.BroadcastSubscribed(data)
			}
		}
	}()
	return nil
}
