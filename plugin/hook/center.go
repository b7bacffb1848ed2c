package hook

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrInterrupt signals that a handler wants to stop the event. For
// BeforeBattle and ToolCall it also rejects the request.
var ErrInterrupt = errors.New("hook interrupted")

// HookFn is a hook handler. It returns the (possibly replaced) payload and
// nil to continue, or ErrInterrupt to stop the chain.
type HookFn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type hookEntry struct {
	priority int
	seq      int
	fn       HookFn
	name     string
}

// HookCenter dispatches server events to registered handlers.
type HookCenter struct {
	mu     sync.RWMutex
	hooks  map[string][]*hookEntry
	seq    int
	logger *zap.Logger
}

// NewHookCenter creates an empty HookCenter. Handler errors other than
// ErrInterrupt are logged and skipped.
func NewHookCenter(logger *zap.Logger) *HookCenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookCenter{hooks: make(map[string][]*hookEntry), logger: logger}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// run in registration order.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.seq++
	entries := append(hc.hooks[event], &hookEntry{priority: priority, seq: hc.seq, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
	hc.hooks[event] = entries
}

func without(entries []*hookEntry, name string) []*hookEntry {
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	return entries[:n]
}

// Unregister removes every handler called name from event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = without(hc.hooks[event], name)
}

// UnregisterAll removes handlers called name from all events.
func (hc *HookCenter) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = without(entries, name)
	}
}

// Count reports how many handlers are registered for event.
func (hc *HookCenter) Count(event string) int {
	if hc == nil {
		return 0
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hooks[event])
}

// Trigger runs the handlers for event in order, threading data through
// each. A nil HookCenter passes data through unchanged.
func (hc *HookCenter) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	if hc == nil {
		return data, nil
	}
	hc.mu.RLock()
	entries := make([]*hookEntry, len(hc.hooks[event]))
	copy(entries, hc.hooks[event])
	hc.mu.RUnlock()

	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			hc.logger.Warn("hook handler failed",
				zap.String("event", event), zap.String("handler", e.name), zap.Error(err))
			continue
		}
		data = out
	}
	return data, nil
}

// Event names fired by the server.
const (
	// BeforeBattle receives *arena.Request before any upstream fetch.
	BeforeBattle = "battle.before"
	// AfterBattle receives *arena.Response once the battle is stored.
	AfterBattle = "battle.after"
	// ToolCall receives a ToolInvocation for every tool call.
	ToolCall = "tool.call"

	OnClientLogin  = "client.login"
	OnClientLogout = "client.logout"
)

// ToolInvocation is the ToolCall payload.
type ToolInvocation struct {
	Tool      string
	Args      map[string]interface{}
	ClientID  int64
	Transport string
}
