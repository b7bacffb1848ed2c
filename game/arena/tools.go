package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pokemcp/server/plugin/hook"
)

// ToolSimulateBattle is the only tool the server exposes.
const ToolSimulateBattle = "simulate_battle"

// Tool describes an invocable tool.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCatalog lists the tools CallTool accepts.
func (svc *Service) ToolCatalog() []Tool {
	return []Tool{{
		Name:        ToolSimulateBattle,
		Description: "Simulates a battle between two Pokémon and returns the log and winner.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pokemon1_name": map[string]interface{}{"type": "string", "description": "First Pokémon"},
				"pokemon2_name": map[string]interface{}{"type": "string", "description": "Second Pokémon"},
				"seed":          map[string]interface{}{"type": "integer", "description": "Optional RNG seed"},
			},
			"required": []string{"pokemon1_name", "pokemon2_name"},
		},
	}}
}

// Invocation identifies who is calling a tool.
type Invocation struct {
	ClientID  *int64
	Transport string
}

// CallTool dispatches a named tool with loosely typed arguments as received
// from a transport.
func (svc *Service) CallTool(ctx context.Context, name string, args map[string]interface{}, inv Invocation) (interface{}, error) {
	payload := hook.ToolInvocation{Tool: name, Args: args, Transport: inv.Transport}
	if inv.ClientID != nil {
		payload.ClientID = *inv.ClientID
	}
	if _, err := svc.hooks.Trigger(ctx, hook.ToolCall, payload); errors.Is(err, hook.ErrInterrupt) {
		svc.metrics.ToolCall(name, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	switch name {
	case ToolSimulateBattle:
		var req Request
		if err := decodeArgs(args, &req); err != nil {
			svc.metrics.ToolCall(name, "invalid")
			return nil, err
		}
		req.ClientID = inv.ClientID
		resp, err := svc.SimulateBattle(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	default:
		svc.metrics.ToolCall("unknown", "error")
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func decodeArgs(args map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
