package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/rccstake/rccstake/internal/amount"
	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")

type fakeSource struct {
	mu   sync.Mutex
	snap position.Snapshot
	ch   chan position.Snapshot
}

func newFakeSource(snap position.Snapshot) *fakeSource {
	f := &fakeSource{snap: snap, ch: make(chan position.Snapshot, 8)}
	return f
}

func (f *fakeSource) View() position.SnapshotView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.View(4)
}

func (f *fakeSource) Subscribe() (<-chan position.Snapshot, func()) {
	f.mu.Lock()
	f.ch <- f.snap
	f.mu.Unlock()
	return f.ch, func() {}
}

func (f *fakeSource) Precision() int32 { return 4 }

func (f *fakeSource) publish(snap position.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	f.ch <- snap
}

func testSnapshot(t *testing.T, generation uint64) position.Snapshot {
	t.Helper()
	staked, err := amount.ToWire("1.5")
	require.NoError(t, err)
	pendingAmt, err := amount.ToWire("0.25")
	require.NoError(t, err)

	return position.Snapshot{
		Account: alice,
		Pool:    types.DefaultPoolID,
		Position: types.Position{
			Staked:          staked,
			WithdrawPending: pendingAmt,
			Withdrawable:    types.ZeroPosition().Withdrawable,
		},
		Generation: generation,
		Pending: map[types.TxKind]types.PendingTransaction{
			types.TxUnstake: {
				ID:     "tx-1",
				Kind:   types.TxUnstake,
				Amount: pendingAmt,
				Hash:   common.HexToHash("0x01"),
				Status: types.TxPending,
			},
		},
		UpdatedAt: time.Now(),
	}
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		ListenAddr:  "127.0.0.1:0",
		ReadTimeout: 5 * time.Second,
	}
}

func startServer(t *testing.T, cfg config.APIConfig, src Source, m *metrics.Collector) *Server {
	t.Helper()
	s := NewServer(cfg, src, m, "test")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestHandleHealth_NotRunning(t *testing.T) {
	s := NewServer(testConfig(), newFakeSource(testSnapshot(t, 1)), nil, "test")

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "server not running", resp.Reason)
}

func TestServer_HealthReportsReadError(t *testing.T) {
	snap := testSnapshot(t, 1)
	snap.Err = fmt.Errorf("%w: rpc down", types.ErrRead)
	s := startServer(t, testConfig(), newFakeSource(snap), nil)

	var resp HealthResponse
	code := getJSON(t, "http://"+s.Addr().String()+"/health", &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Reason, "rpc down")
	assert.Equal(t, alice.Hex(), resp.Account)
	assert.Equal(t, "test", resp.Version)
}

func TestServer_PositionAndPending(t *testing.T) {
	s := startServer(t, testConfig(), newFakeSource(testSnapshot(t, 3)), nil)
	base := "http://" + s.Addr().String()

	var view position.SnapshotView
	require.Equal(t, http.StatusOK, getJSON(t, base+"/position", &view))
	assert.Equal(t, alice.Hex(), view.Account)
	assert.Equal(t, "1.5000", view.Position.Staked)
	assert.Equal(t, "0.2500", view.Position.WithdrawPending)
	assert.Equal(t, "0.0000", view.Position.Withdrawable)
	assert.Equal(t, uint64(3), view.Generation)

	var pending PendingResponse
	require.Equal(t, http.StatusOK, getJSON(t, base+"/pending", &pending))
	require.Len(t, pending.Pending, 1)
	assert.Equal(t, types.TxUnstake, pending.Pending[0].Kind)
	assert.Equal(t, types.TxPending, pending.Pending[0].Status)
	assert.Equal(t, "0.25", pending.Pending[0].Amount)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := NewServer(testConfig(), newFakeSource(testSnapshot(t, 1)), nil, "test")

	rec := httptest.NewRecorder()
	s.handlePosition(rec, httptest.NewRequest(http.MethodPost, "/position", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.NewCollector()
	s := startServer(t, testConfig(), newFakeSource(testSnapshot(t, 1)), m)

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rccstake_feed_clients")
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, position.SnapshotView) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Type string                `json:"type"`
		Data position.SnapshotView `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Data
}

func TestServer_WebSocketStreamsSnapshots(t *testing.T) {
	src := newFakeSource(testSnapshot(t, 1))
	s := startServer(t, testConfig(), src, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	typ, view := readMessage(t, conn)
	require.Equal(t, MessageSnapshot, typ)
	assert.Equal(t, uint64(1), view.Generation)

	next := testSnapshot(t, 2)
	next.Pending = nil
	src.publish(next)

	typ, view = readMessage(t, conn)
	require.Equal(t, MessageSnapshot, typ)
	assert.Equal(t, uint64(2), view.Generation)
	assert.Empty(t, view.Pending)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MessagePing}))
	typ, _ = readMessage(t, conn)
	assert.Equal(t, MessagePong, typ)
}

func TestServer_WebSocketLateClientGetsLatest(t *testing.T) {
	src := newFakeSource(testSnapshot(t, 1))
	s := startServer(t, testConfig(), src, nil)

	first, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer first.Close()
	_, view := readMessage(t, first)
	require.Equal(t, uint64(1), view.Generation)

	src.publish(testSnapshot(t, 5))
	_, view = readMessage(t, first)
	require.Equal(t, uint64(5), view.Generation)

	late, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer late.Close()
	_, view = readMessage(t, late)
	assert.Equal(t, uint64(5), view.Generation)
}

func TestServer_StopClosesFeed(t *testing.T) {
	m := metrics.NewCollector()
	s := NewServer(testConfig(), newFakeSource(testSnapshot(t, 1)), m, "test")
	require.NoError(t, s.Start(context.Background()))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "expected going-away close, got %v", err)

	// Second stop is a no-op
	assert.NoError(t, s.Stop(ctx))
}

func TestServer_StartTwice(t *testing.T) {
	s := startServer(t, testConfig(), newFakeSource(testSnapshot(t, 1)), nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestWithMiddleware_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 60
	cfg.RateLimitBurst = 1
	s := NewServer(cfg, newFakeSource(testSnapshot(t, 1)), nil, "test")
	handler := s.withMiddleware(s.handlePosition)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/position", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/position", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// A different client has its own limiter
	req := httptest.NewRequest(http.MethodGet, "/position", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupRateLimiters(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 60
	s := NewServer(cfg, newFakeSource(testSnapshot(t, 1)), nil, "test")

	s.getRateLimiter("192.0.2.1")
	s.getRateLimiter("192.0.2.2")

	assert.Equal(t, 0, s.cleanupRateLimiters(time.Now().Add(-time.Minute)))
	assert.Equal(t, 2, s.cleanupRateLimiters(time.Now().Add(time.Minute)))
}

func TestRateLimiters_ConcurrentUseAndCleanup(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 60
	s := NewServer(cfg, newFakeSource(testSnapshot(t, 1)), nil, "test")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.getRateLimiter("127.0.0.1")
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.cleanupRateLimiters(time.Now().Add(-time.Minute))
	}
	wg.Wait()

	assert.Equal(t, 0, s.cleanupRateLimiters(time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, s.cleanupRateLimiters(time.Now().Add(time.Minute)))
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://dapp.example"}
	s := NewServer(cfg, newFakeSource(testSnapshot(t, 1)), nil, "test")
	handler := s.withMiddleware(s.handlePosition)

	req := httptest.NewRequest(http.MethodOptions, "/position", nil)
	req.Header.Set("Origin", "https://dapp.example")
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dapp.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/position", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://dapp.example"}
	s := NewServer(cfg, newFakeSource(testSnapshot(t, 1)), nil, "test")

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:8645", true},
		{"https://dapp.example", "127.0.0.1:8645", true},
		{"http://127.0.0.1:8645", "127.0.0.1:8645", true},
		{"https://evil.example", "127.0.0.1:8645", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, s.checkOrigin(req), strings.TrimSpace("origin "+tt.origin))
	}
}
