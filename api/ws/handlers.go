package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pokemcp/server/audit"
	"github.com/pokemcp/server/game/arena"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/resource"
)

// Message types accepted from clients.
const (
	TypePing          = "ping"
	TypeListResources = "list_resources"
	TypeReadResource  = "read_resource"
	TypeListTools     = "list_tools"
	TypeCallTool      = "call_tool"
	TypeSubscribe     = "subscribe_battles"
	TypeUnsubscribe   = "unsubscribe_battles"
)

// Error codes sent in error replies.
const (
	CodeInvalid     = "invalid_request"
	CodeNotFound    = "not_found"
	CodeRejected    = "rejected"
	CodeRateLimited = "rate_limited"
	CodeUpstream    = "upstream_error"
)

// Handlers implements the resource and tool message types.
type Handlers struct {
	registry *resource.Registry
	arena    *arena.Service
	limiter  *mw.ClientLimiter
	audit    *audit.Service
	logger   *zap.Logger
}

// NewHandlers creates the message handlers. limiter and auditSvc may be nil.
func NewHandlers(registry *resource.Registry, svc *arena.Service, limiter *mw.ClientLimiter, auditSvc *audit.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{registry: registry, arena: svc, limiter: limiter, audit: auditSvc, logger: logger}
}

// Register binds every message type on r.
func (h *Handlers) Register(r *Router) {
	r.On(TypePing, h.ping)
	r.On(TypeListResources, h.listResources)
	r.On(TypeReadResource, h.readResource)
	r.On(TypeListTools, h.listTools)
	r.On(TypeCallTool, h.callTool)
	r.On(TypeSubscribe, h.subscribe(true))
	r.On(TypeUnsubscribe, h.subscribe(false))
}

func decode(payload json.RawMessage, out interface{}) error {
	if len(payload) == 0 {
		return WithCode(CodeInvalid, errors.New("missing payload"))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return WithCode(CodeInvalid, fmt.Errorf("invalid payload: %v", err))
	}
	return nil
}

func (h *Handlers) ping(_ context.Context, _ *Session, payload json.RawMessage) (interface{}, error) {
	var req struct {
		ClientTS int64 `json:"client_ts"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &req)
	}
	return map[string]int64{"client_ts": req.ClientTS, "server_ts": time.Now().UnixMilli()}, nil
}

func (h *Handlers) listResources(ctx context.Context, _ *Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"resources": h.registry.List(ctx)}, nil
}

func (h *Handlers) readResource(ctx context.Context, _ *Session, payload json.RawMessage) (interface{}, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.URI) == "" {
		return nil, WithCode(CodeInvalid, errors.New("uri is required"))
	}
	content, err := h.registry.Read(ctx, req.URI)
	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, resource.ErrNotFound):
		return nil, WithCode(CodeNotFound, err)
	case errors.Is(err, resource.ErrUnknownResource), errors.Is(err, resource.ErrEmptyName):
		return nil, WithCode(CodeInvalid, err)
	default:
		return nil, WithCode(CodeUpstream, err)
	}
}

func (h *Handlers) listTools(_ context.Context, _ *Session, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"tools": h.arena.ToolCatalog()}, nil
}

type callToolRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (h *Handlers) callTool(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, error) {
	var req callToolRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, WithCode(CodeInvalid, errors.New("name is required"))
	}
	if !h.limiter.Allow(s.ClientID) {
		return nil, WithCode(CodeRateLimited, errors.New("tool rate limit exceeded"))
	}

	clientID := s.ClientID
	start := time.Now()
	result, err := h.arena.CallTool(ctx, req.Name, req.Arguments, arena.Invocation{
		ClientID:  &clientID,
		Transport: audit.TransportWS,
	})

	if h.audit != nil {
		entry := audit.Entry{
			TraceID:    TraceIDFromCtx(ctx),
			ClientID:   &clientID,
			Username:   s.Username,
			Action:     "tool." + req.Name,
			Transport:  audit.TransportWS,
			Request:    req.Arguments,
			Response:   result,
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.Log(entry)
	}

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, arena.ErrInvalidRequest):
		return nil, WithCode(CodeInvalid, err)
	case errors.Is(err, arena.ErrUnknownTool):
		return nil, WithCode(CodeNotFound, err)
	case errors.Is(err, arena.ErrRejected):
		return nil, WithCode(CodeRejected, err)
	default:
		return nil, err
	}
}

func (h *Handlers) subscribe(on bool) HandlerFunc {
	return func(_ context.Context, s *Session, _ json.RawMessage) (interface{}, error) {
		s.SetSubscribed(on)
		return map[string]bool{"subscribed": on}, nil
	}
}
