package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pokemcp/server/app"
	"github.com/pokemcp/server/config"
	"github.com/pokemcp/server/testutil"
)

// AdminKey is the X-Admin-Key accepted by the test server.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together
// against a fake PokeAPI.
type TestServer struct {
	*app.App
	API    *testutil.FakePokeAPI
	DB     *gorm.DB
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Cfg    *config.Config
}

// NewTestServer creates a fully wired server for integration testing. It uses
// the same app.New wiring as main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := testutil.NewFakePokeAPI(t)
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)

	cfg := config.Default()
	cfg.Server.AdminKey = AdminKey
	cfg.PokeAPI.BaseURL = api.URL
	cfg.PokeAPI.Timeout = 2 * time.Second
	cfg.Security.JWTSecret = "integration-test-secret"
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 2000
	cfg.RateLimit.ToolRPS = 1000
	cfg.RateLimit.ToolBurst = 1000
	cfg.Scheduler.StatsInterval = 0

	a := app.New(cfg, app.Infra{DB: db, Cache: c, PubSub: pubsub, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	server := httptest.NewServer(a.Engine)
	t.Cleanup(func() {
		cancel()
		a.Stop(context.Background())
		server.Close()
	})
	return &TestServer{
		App:    a,
		API:    api,
		DB:     db,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		Cfg:    cfg,
	}
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, method, path, body, "", "X-Admin-Key", AdminKey)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// Drain closes the response body and returns the status code.
func Drain(resp *http.Response) int {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and client ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, clientID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token    string `json:"token"`
		ClientID int64  `json:"client_id"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.ClientID
}

// Simulate calls simulate_battle over REST and returns the decoded result.
func (ts *TestServer) Simulate(t *testing.T, token, p1, p2 string, seed int64) map[string]interface{} {
	t.Helper()
	resp := ts.PostJSON(t, "/api/tools/simulate_battle", map[string]interface{}{
		"pokemon1_name": p1,
		"pokemon2_name": p2,
		"seed":          seed,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	ReadJSON(t, resp, &out)
	return out
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so timeouts never poison the conn.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// Packet is the decoded wire envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	t.Cleanup(wc.Close)
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next sequence number and returns it.
func (wc *WSClient) Send(msgType string, payload interface{}) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: raw})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
	return seq
}

// RecvAny reads one packet, returning an error on timeout or read failure.
func (wc *WSClient) RecvAny(timeout time.Duration) (Packet, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return Packet{}, res.err
		}
		var pkt Packet
		err := json.Unmarshal(res.data, &pkt)
		return pkt, err
	case <-time.After(timeout):
		return Packet{}, fmt.Errorf("read timeout after %s", timeout)
	}
}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) Packet {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt.Type == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return Packet{}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// ConnectSSE opens /sse and streams parsed events until the test ends.
func (ts *TestServer) ConnectSSE(t *testing.T, token, query string) <-chan SSEEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token+"&"+query, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := make(chan SSEEvent, 32)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		var ev SSEEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.Name != "":
				out <- ev
				ev = SSEEvent{}
			}
		}
	}()
	return out
}

// NextEvent waits for the next SSE event.
func NextEvent(t *testing.T, ch <-chan SSEEvent) SSEEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "sse stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no sse event")
		return SSEEvent{}
	}
}

var testCounter uint64

// UniqueID returns a short unique string suitable for usernames.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d", prefix, n)
}
