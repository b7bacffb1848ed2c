package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/testutil"
)

func TestHub_RegisterCountKick(t *testing.T) {
	h := NewHub(nop())
	a1, a2, b := newSession(1), newSession(1), newSession(2)
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	assert.Equal(t, 3, h.Count())

	assert.Equal(t, 2, h.KickClient(1))
	assert.True(t, a1.IsClosed())
	assert.True(t, a2.IsClosed())
	assert.False(t, b.IsClosed())
	assert.Equal(t, 0, h.KickClient(42))

	h.Unregister(a1)
	h.Unregister(a2)
	assert.Equal(t, 1, h.Count())

	h.CloseAll()
	assert.True(t, b.IsClosed())
}

func TestHub_BroadcastSubscribedOnly(t *testing.T) {
	h := NewHub(nop())
	sub, other := newSession(1), newSession(2)
	sub.SetSubscribed(true)
	h.Register(sub)
	h.Register(other)

	assert.Equal(t, 1, h.BroadcastSubscribed([]byte(`{"type":"x"}`)))
	assert.Equal(t, "x", next(t, sub).Type)
	assertNoPacket(t, other)
}

func TestHub_RelayBattles(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	h := NewHub(nop())
	sub := newSession(1)
	sub.SetSubscribed(true)
	h.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.RelayBattles(ctx, ps))

	var got Packet
	require.Eventually(t, func() bool {
		_ = ps.Publish(context.Background(), cache.ChannelBattles, `{"id":"b1","winner":"pikachu"}`)
		select {
		case raw := <-sub.SendChan:
			return json.Unmarshal(raw, &got) == nil
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, TypeBattleCompleted, got.Type)
	assert.JSONEq(t, `{"id":"b1","winner":"pikachu"}`, string(got.Payload))
}
