package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		ts.Close()
	})
	return srv, ts
}

func testConfig() ServerConfig {
	cfg := DefaultConfig()
	cfg.PublicAddress = "203.0.113.9"
	return cfg
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/list/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

// waitFor polls until cond holds; the server applies frames
// asynchronously, so tests observe effects with a deadline.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitClosed waits until the server has closed the connection.
func waitClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func fetchServers(t *testing.T, ts *httptest.Server, query string) []ServerInfo {
	t.Helper()

	resp, err := http.Get(ts.URL + "/api/list/servers" + query)
	if err != nil {
		t.Fatalf("GET servers failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var servers []ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		t.Fatalf("decode servers failed: %v", err)
	}
	return servers
}

func TestLifecycle(t *testing.T) {
	srv, ts := startTestServer(t, testConfig())

	conn := dialWS(t, ts)
	defer conn.Close()

	// Registration
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Arena","port":7777}`)); err != nil {
		t.Fatalf("write connect failed: %v", err)
	}
	waitFor(t, "registration", func() bool { return srv.registry.Len() == 1 })

	servers := fetchServers(t, ts, "")
	if len(servers) != 1 {
		t.Fatalf("expected 1 listed server, got %d", len(servers))
	}
	got := servers[0]
	if got.Name != "Arena" || got.Port != 7777 || got.TLS || got.Players != 0 {
		t.Errorf("unexpected listed server: %+v", got)
	}
	// Loopback dial, so the entry is official and advertises the
	// configured public address
	if !got.Official {
		t.Error("expected official entry for loopback connection")
	}
	if got.IP != "203.0.113.9" {
		t.Errorf("expected public address, got %s", got.IP)
	}

	// Player update
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"players":5}`)); err != nil {
		t.Fatalf("write update failed: %v", err)
	}
	waitFor(t, "player update", func() bool {
		servers := fetchServers(t, ts, "")
		return len(servers) == 1 && servers[0].Players == 5
	})

	// Close removes the entry, permanently
	conn.Close()
	waitFor(t, "removal after close", func() bool { return srv.registry.Len() == 0 })
	time.Sleep(50 * time.Millisecond)
	if srv.registry.Len() != 0 {
		t.Error("entry resurrected after close")
	}
	if len(fetchServers(t, ts, "")) != 0 {
		t.Error("closed server still listed")
	}
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name   string
		frames []func(*websocket.Conn) error
	}{
		{
			name: "malformed first frame",
			frames: []func(*websocket.Conn) error{
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`not json`))
				},
			},
		},
		{
			name: "first frame missing port",
			frames: []func(*websocket.Conn) error{
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`{"name":"Arena"}`))
				},
			},
		},
		{
			name: "binary first frame",
			frames: []func(*websocket.Conn) error{
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
				},
			},
		},
		{
			name: "duplicate connect frame",
			frames: []func(*websocket.Conn) error{
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`{"name":"Arena","port":7777}`))
				},
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`{"name":"Arena","port":7777}`))
				},
			},
		},
		{
			name: "malformed update",
			frames: []func(*websocket.Conn) error{
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`{"name":"Arena","port":7777}`))
				},
				func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte(`{"players":"many"}`))
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ts := startTestServer(t, testConfig())

			conn := dialWS(t, ts)
			defer conn.Close()

			for _, send := range tt.frames {
				if err := send(conn); err != nil {
					t.Fatalf("write failed: %v", err)
				}
			}

			// The server must close the connection and leave no
			// entry behind
			waitClosed(t, conn)
			waitFor(t, "registry cleanup", func() bool { return srv.registry.Len() == 0 })
		})
	}
}

func TestConcurrentSessions(t *testing.T) {
	const (
		connections = 16
		updates     = 10
	)

	srv, ts := startTestServer(t, testConfig())

	var wg sync.WaitGroup
	conns := make([]*websocket.Conn, connections)
	for i := 0; i < connections; i++ {
		conns[i] = dialWS(t, ts)
		defer conns[i].Close()

		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()

			connect := fmt.Sprintf(`{"name":"server-%02d","port":%d}`, i, 10000+i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(connect)); err != nil {
				t.Errorf("conn %d: connect failed: %v", i, err)
				return
			}
			for u := 1; u <= updates; u++ {
				update := fmt.Sprintf(`{"players":%d}`, i*100+u)
				if err := conn.WriteMessage(websocket.TextMessage, []byte(update)); err != nil {
					t.Errorf("conn %d: update %d failed: %v", i, u, err)
					return
				}
			}
		}(i, conns[i])
	}
	wg.Wait()

	waitFor(t, "all updates applied", func() bool {
		servers := fetchServers(t, ts, "")
		if len(servers) != connections {
			return false
		}
		for _, info := range servers {
			var i int
			if _, err := fmt.Sscanf(info.Name, "server-%02d", &i); err != nil {
				t.Fatalf("unexpected server name %q", info.Name)
			}
			if info.Players != uint32(i*100+updates) {
				return false
			}
			if info.Port != uint16(10000+i) {
				t.Fatalf("conn %d: port corrupted: %d", i, info.Port)
			}
		}
		return true
	})

	for _, conn := range conns {
		conn.Close()
	}
	waitFor(t, "all entries removed", func() bool { return srv.registry.Len() == 0 })
}

func TestIdleConnectionsAreReaped(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeoutSeconds = 600 // sweep manually below

	srv, ts := startTestServer(t, cfg)

	conn := dialWS(t, ts)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Sleeper","port":7777}`)); err != nil {
		t.Fatalf("write connect failed: %v", err)
	}
	waitFor(t, "registration", func() bool { return srv.registry.Len() == 1 })

	// Backdate the session's last activity past the timeout and sweep
	for _, sess := range srv.sessions.GetAllSessions() {
		sess.lastSeen.Store(time.Now().Add(-time.Hour).UnixMilli())
	}
	srv.sweepIdleSessions()

	waitFor(t, "idle entry reaped", func() bool { return srv.registry.Len() == 0 })
	waitClosed(t, conn)
}

func TestReadDeadlineClosesIdleConnection(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeoutSeconds = 1

	srv, ts := startTestServer(t, cfg)

	conn := dialWS(t, ts)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Quiet","port":7777}`)); err != nil {
		t.Fatalf("write connect failed: %v", err)
	}
	waitFor(t, "registration", func() bool { return srv.registry.Len() == 1 })

	// Send nothing; the read deadline should end the session
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.registry.Len() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("idle connection was not closed by the read deadline")
}

func TestHealthcheck(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/api/list/healthcheck")
	if err != nil {
		t.Fatalf("GET healthcheck failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health failed: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("unexpected health payload: %v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
