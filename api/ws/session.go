package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
	maxMessage    = 64 << 10
)

// Packet is the unified WS message envelope. Replies echo the request Seq.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one authenticated WebSocket connection.
type Session struct {
	ClientID  int64
	Username  string
	SessionID string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	LastSeq  uint64

	subscribed atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	logger     *zap.Logger
}

// NewSession creates a Session. When conn is non-nil its write goroutine is
// started; a nil conn gives a detached session whose output stays in
// SendChan.
func NewSession(clientID int64, username, sessionID string, conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ClientID:  clientID,
		Username:  username,
		SessionID: sessionID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("client_id", s.ClientID),
					zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it without blocking. Packets are dropped when
// the queue is full or the session is closed.
func (s *Session) Send(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw queues pre-encoded bytes with the same drop rules as Send.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.Int64("client_id", s.ClientID))
	}
}

// Reply sends v as the payload of a packet answering seq.
func (s *Session) Reply(seq uint64, msgType string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("ws reply encode failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.Send(&Packet{Seq: seq, Type: msgType, Payload: payload})
}

// Close signals the writePump to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
		s.cancel()
	})
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetSubscribed toggles delivery of battle_completed events.
func (s *Session) SetSubscribed(v bool) { s.subscribed.Store(v) }

// Subscribed reports whether the session receives battle_completed events.
func (s *Session) Subscribed() bool { return s.subscribed.Load() }

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
