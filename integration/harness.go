package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/waifuarena/api/rest"
	"github.com/kasuganosora/waifuarena/api/sse"
	apiws "github.com/kasuganosora/waifuarena/api/ws"
	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/config"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/ledger"
	"github.com/kasuganosora/waifuarena/metrics"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/scheduler"
	"github.com/kasuganosora/waifuarena/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the operator key the test server accepts on /api/admin.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all arena subsystems wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Ledger  *ledger.Service
	Metrics *metrics.Metrics
	Audit   *audit.Service
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
	Sec     config.SecurityConfig

	nonce atomic.Int64
}

// NewTestServer creates a fully wired arena server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T, administrator identity.Address) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		NonceTTL:       time.Hour,
	}

	m, err := metrics.New()
	require.NoError(t, err)
	l, err := ledger.New(db, administrator, pubsub, m, logger)
	require.NoError(t, err)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- WS Router ----
	wsRouter := apiws.NewRouter(logger)
	apiws.NewArenaHandlers(l, auditSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	limit := mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", mw.IPWhitelist(nil), gin.WrapH(m.Handler()))

	apirest.Register(r, apirest.Deps{
		Ledger:    l,
		Audit:     auditSvc,
		Cache:     c,
		Security:  sec,
		AdminKey:  AdminKey,
		Scheduler: sched,
		Logger:    logger,
		RateLimit: limit,
	})
	r.GET("/sse", limit, sse.NewHandler(pubsub, c, sec, logger).ServeSSE)
	r.GET("/ws", limit, apiws.NewHandler(c, sec, wsRouter, logger).ServeWS)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Ledger:  l,
		Metrics: m,
		Audit:   auditSvc,
		Server:  server,
		URL:     url,
		WSURL:   "ws" + url[len("http"):] + "/ws",
		Sec:     sec,
	}
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Action sends an authenticated mutating POST with a fresh X-Nonce.
func (ts *TestServer) Action(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set(mw.NonceHeader, "it-"+strconv.FormatInt(ts.nonce.Add(1), 10))
	return ts.do(t, http.MethodPost, path, body, h)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return ts.do(t, http.MethodGet, path, nil, h)
}

// AdminPost sends a POST with the operator key.
func (ts *TestServer) AdminPost(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	h := http.Header{}
	h.Set("X-Admin-Key", AdminKey)
	return ts.do(t, http.MethodPost, path, body, h)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login asks the admin endpoint for a session token for addr.
func (ts *TestServer) Login(t *testing.T, addr identity.Address) string {
	t.Helper()
	resp := ts.AdminPost(t, "/api/admin/tokens", map[string]string{"address": addr.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string)
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
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

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
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

// Send writes a packet with the next seq and returns that seq.
func (wc *WSClient) Send(msgType string, payload interface{}) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteJSON(apiws.Packet{Seq: seq, Type: msgType, Payload: raw}))
	return seq
}

// Recv reads one packet with a timeout.
func (wc *WSClient) Recv(timeout time.Duration) apiws.Packet {
	wc.t.Helper()
	select {
	case res := <-wc.readCh:
		require.NoError(wc.t, res.err, "WS recv failed")
		var pkt apiws.Packet
		require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
		return pkt
	case <-time.After(timeout):
		wc.t.Fatal("WS recv timed out")
		return apiws.Packet{}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// SSEClient reads events from /sse in the background.
type SSEClient struct {
	events chan SSEEvent
	t      *testing.T
}

// ConnectSSE opens /sse and waits for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token, query string) *SSEClient {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/sse?"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })

	sc := &SSEClient{events: make(chan SSEEvent, 64), t: t}
	go sc.readLoop(resp.Body)
	ev := sc.Next(5 * time.Second)
	require.Equal(t, "connected", ev.Event)
	return sc
}

func (sc *SSEClient) readLoop(body io.Reader) {
	defer close(sc.events)
	scanner := bufio.NewScanner(body)
	var ev SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Event != "" {
				sc.events <- ev
			}
			ev = SSEEvent{}
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Next returns the next event or fails the test on timeout.
func (sc *SSEClient) Next(timeout time.Duration) SSEEvent {
	sc.t.Helper()
	select {
	case ev, ok := <-sc.events:
		require.True(sc.t, ok, "SSE stream closed")
		return ev
	case <-time.After(timeout):
		sc.t.Fatal("SSE recv timed out")
		return SSEEvent{}
	}
}
