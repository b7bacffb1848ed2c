package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TypeError is the reply type for failed requests.
const TypeError = "error"

// HandlerFunc processes a decoded WS message payload. The returned value is
// sent back as the <type>_result payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, error)

// ErrorPayload is the body of an error reply.
type ErrorPayload struct {
	RequestType string `json:"request_type,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	TraceID     string `json:"trace_id,omitempty"`
}

// codedError carries the wire code for an error reply.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// WithCode tags err with the code reported to the client.
func WithCode(code string, err error) error {
	return &codedError{code: code, err: err}
}

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, invokes the handler and sends
// its reply.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("client_id", s.ClientID),
			zap.Error(err))
		s.Reply(0, TypeError, ErrorPayload{Code: "bad_packet", Message: "malformed packet"})
		return
	}

	// Monotonic seq check. Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("client_id", s.ClientID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	traceID := uuid.NewString()
	ctx := context.WithValue(s.Context(), ctxKeyTraceID{}, traceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("client_id", s.ClientID))
		s.Reply(pkt.Seq, TypeError, ErrorPayload{
			RequestType: pkt.Type,
			Code:        "unknown_type",
			Message:     "unknown message type",
			TraceID:     traceID,
		})
		return
	}

	result, err := fn(ctx, s, pkt.Payload)
	if err != nil {
		code := "internal"
		var ce *codedError
		if errors.As(err, &ce) {
			code = ce.code
		}
		if code == "internal" {
			r.logger.Error("handler error",
				zap.String("type", pkt.Type),
				zap.Int64("client_id", s.ClientID),
				zap.String("trace_id", traceID),
				zap.Error(err))
		}
		s.Reply(pkt.Seq, TypeError, ErrorPayload{
			RequestType: pkt.Type,
			Code:        code,
			Message:     err.Error(),
			TraceID:     traceID,
		})
		return
	}
	s.Reply(pkt.Seq, pkt.Type+"_result", result)
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
