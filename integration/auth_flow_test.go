package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokemcp/server/model"
)

func TestFullAuthLifecycle(t *testing.T) {
	ts := NewTestServer(t)

	username := UniqueID("auth")
	password := "testpass1234"

	// First login registers the client.
	token1, clientID := ts.Login(t, username, password)
	require.NotEmpty(t, token1)
	require.Greater(t, clientID, int64(0))

	// Second login returns the same client and a new session.
	token2, clientID2 := ts.Login(t, username, password)
	assert.Equal(t, clientID, clientID2)
	assert.NotEqual(t, token1, token2)

	// Both sessions are live.
	assert.Equal(t, http.StatusOK, Drain(ts.Get(t, "/api/battles?mine=1", token1)))
	assert.Equal(t, http.StatusOK, Drain(ts.Get(t, "/api/battles?mine=1", token2)))

	// Logout drops only token2's session.
	assert.Equal(t, http.StatusOK, Drain(ts.PostJSON(t, "/api/auth/logout", nil, token2)))
	assert.Equal(t, http.StatusUnauthorized, Drain(ts.Get(t, "/api/battles?mine=1", token2)))
	assert.Equal(t, http.StatusOK, Drain(ts.Get(t, "/api/battles?mine=1", token1)))

	// Login and logout are written to the audit log through hooks.
	ts.Audit.Stop(context.Background())
	var actions []string
	require.NoError(t, ts.DB.Model(&model.AuditLog{}).
		Where("client_id = ?", clientID).Order("id").Pluck("action", &actions).Error)
	assert.Equal(t, []string{"client.login", "client.login", "client.logout"}, actions)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := NewTestServer(t)
	username := UniqueID("wrongpw")
	ts.Login(t, username, "correctpass")

	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": "wrongpassword",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, Drain(resp))
}

func TestTokenRefresh(t *testing.T) {
	ts := NewTestServer(t)
	token, _ := ts.Login(t, UniqueID("refresh"), "pass1234")

	resp := ts.PostJSON(t, "/api/auth/refresh", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &result)
	require.NotEmpty(t, result.Token)
	assert.NotEqual(t, token, result.Token)

	assert.Equal(t, http.StatusUnauthorized, Drain(ts.Get(t, "/api/battles?mine=1", token)))
	assert.Equal(t, http.StatusOK, Drain(ts.Get(t, "/api/battles?mine=1", result.Token)))
}

func TestWSConnectionAuth(t *testing.T) {
	ts := NewTestServer(t)
	token, _ := ts.Login(t, UniqueID("wsauth"), "pass1234")

	ws := ts.ConnectWS(t, token)
	ws.Close()

	_, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token=invalid-token-xxx", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	assert.Error(t, err, "expected WS dial to fail with invalid token")

	_, resp, err = websocket.DefaultDialer.Dial(ts.WSURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	assert.Error(t, err, "expected WS dial to fail with no token")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.Get(t, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	ReadJSON(t, resp, &health)
	assert.Equal(t, "ok", health["status"])

	// Tool calls show up on the Prometheus endpoint.
	token, _ := ts.Login(t, UniqueID("metrics"), "pass1234")
	ts.Simulate(t, token, "pikachu", "squirtle", 3)

	resp = ts.Get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `pokemcp_tool_calls_total{status="ok",tool="simulate_battle"} 1`)
	assert.Contains(t, body, "pokemcp_http_request_duration_seconds")
	assert.Contains(t, body, "pokemcp_pokeapi_requests_total")

	assert.Equal(t, http.StatusNotFound, Drain(ts.Get(t, "/nope", "")))
}
