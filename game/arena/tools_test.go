package arena

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
)

func TestToolCatalog(t *testing.T) {
	f := newFixture(t)
	tools := f.svc.ToolCatalog()
	require.Len(t, tools, 1)
	assert.Equal(t, ToolSimulateBattle, tools[0].Name)
	assert.Equal(t, []string{"pokemon1_name", "pokemon2_name"}, tools[0].InputSchema["required"])
}

func TestCallToolSimulateBattle(t *testing.T) {
	f := newFixture(t)
	var seen hook.ToolInvocation
	f.hooks.Register(hook.ToolCall, 0, "spy", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		seen = d.(hook.ToolInvocation)
		return d, nil
	})

	clientID := int64(9)
	out, err := f.svc.CallTool(context.Background(), ToolSimulateBattle, map[string]interface{}{
		"pokemon1_name": "pikachu",
		"pokemon2_name": "squirtle",
		"seed":          float64(3),
	}, Invocation{ClientID: &clientID, Transport: "rest"})
	require.NoError(t, err)

	resp, ok := out.(*Response)
	require.True(t, ok)
	assert.Equal(t, int64(3), resp.Seed)
	assert.NotEmpty(t, resp.BattleID)
	assert.Equal(t, hook.ToolInvocation{
		Tool:      ToolSimulateBattle,
		Args:      map[string]interface{}{"pokemon1_name": "pikachu", "pokemon2_name": "squirtle", "seed": float64(3)},
		ClientID:  9,
		Transport: "rest",
	}, seen)

	rec, err := f.svc.Get(context.Background(), resp.BattleID)
	require.NoError(t, err)
	require.NotNil(t, rec.ClientID)
	assert.Equal(t, clientID, *rec.ClientID)
}

func TestCallToolErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.CallTool(ctx, "fly", nil, Invocation{})
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrUnknownTool))

	_, err = f.svc.CallTool(ctx, ToolSimulateBattle, map[string]interface{}{"pokemon1_name": 12}, Invocation{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = f.svc.CallTool(ctx, ToolSimulateBattle, map[string]interface{}{"pokemon1_name": "pikachu"}, Invocation{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	f.hooks.Register(hook.ToolCall, 0, "deny", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d, hook.ErrInterrupt
	})
	out, err = f.svc.CallTool(ctx, ToolSimulateBattle, map[string]interface{}{
		"pokemon1_name": "pikachu", "pokemon2_name": "squirtle",
	}, Invocation{})
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrRejected))

	var count int64
	f.db.Model(&model.BattleRecord{}).Count(&count)
	assert.Zero(t, count)

	sum, err := f.metrics.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum["pokemcp_tool_calls_total{status=error}{tool=unknown}"])
	assert.Equal(t, 2.0, sum["pokemcp_tool_calls_total{status=invalid}{tool=simulate_battle}"])
	assert.Equal(t, 1.0, sum["pokemcp_tool_calls_total{status=rejected}{tool=simulate_battle}"])
}
