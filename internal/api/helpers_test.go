package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ricochet1k/ptymux/internal/provider/pty"
	"github.com/ricochet1k/ptymux/internal/realtime"
	"github.com/ricochet1k/ptymux/internal/service"
	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

type testEnv struct {
	router *service.Router
	server *httptest.Server
	base   string
}

func newTestEnv(t *testing.T, base string) *testEnv {
	t.Helper()
	return newTestEnvWithArgv(t, base, []string{"cat"})
}

func newTestEnvWithArgv(t *testing.T, base string, argv []string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(logger)
	router := service.NewRouter(ctx, service.NewRegistry(), hub, pty.NewLauncher(0, 0), service.RouterConfig{
		Argv:                  argv,
		Banner:                "welcome",
		PollInterval:          5 * time.Millisecond,
		SpawnFailureThreshold: 2,
		SpawnCooldown:         time.Minute,
	}, logger)
	handler := NewHandler(router, hub, Options{BaseURL: base, EventPath: base + "pty", Version: "test", Logger: logger})
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(func() {
		srv.Close()
		for _, s := range router.Registry().List() {
			_ = router.Remove(s.ID)
		}
		cancel()
		router.Wait()
	})
	return &testEnv{router: router, server: srv, base: base}
}

func (env *testEnv) url(path string) string {
	return env.server.URL + env.base + path
}

func (env *testEnv) dial(t *testing.T) *wsConn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.url("pty"), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial event channel: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsConn{t: t, conn: conn}
}

// frame mirrors ServerEnvelope with the payload left raw.
type frame struct {
	Event realtimeTypes.ServerEventName `json:"event"`
	Data  json.RawMessage               `json:"data"`
}

type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *wsConn) send(event realtimeTypes.ClientEventName, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := c.conn.WriteJSON(realtimeTypes.ClientEnvelope{Event: event, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
}

func (c *wsConn) read() frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

// readUntil reads frames until one has the given event name and returns it
// together with the output text seen on the way.
func (c *wsConn) readUntil(event realtimeTypes.ServerEventName) (frame, string) {
	c.t.Helper()
	var output strings.Builder
	for {
		f := c.read()
		if f.Event == event {
			return f, output.String()
		}
		if f.Event == realtimeTypes.ServerEventPTYOutput {
			output.WriteString(decodeOutput(c.t, f))
		}
	}
}

// readOutputContaining reads output frames until their concatenation
// contains want.
func (c *wsConn) readOutputContaining(want string) string {
	c.t.Helper()
	var output strings.Builder
	for !strings.Contains(output.String(), want) {
		f := c.read()
		if f.Event == realtimeTypes.ServerEventPTYOutput {
			output.WriteString(decodeOutput(c.t, f))
		}
	}
	return output.String()
}

func (c *wsConn) attach(tty *string) realtimeTypes.PTYConnect {
	c.t.Helper()
	c.send(realtimeTypes.ClientEventRequestTTY, realtimeTypes.RequestTTY{TTY: tty})
	f, _ := c.readUntil(realtimeTypes.ServerEventPTYConnect)
	return decodeConnect(c.t, f)
}

func decodeOutput(t *testing.T, f frame) string {
	t.Helper()
	var payload realtimeTypes.PTYOutput
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode pty-output: %v", err)
	}
	return payload.Output
}

func decodeConnect(t *testing.T, f frame) realtimeTypes.PTYConnect {
	t.Helper()
	var payload realtimeTypes.PTYConnect
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode pty-connect: %v", err)
	}
	return payload
}

func decodeError(t *testing.T, f frame) string {
	t.Helper()
	var payload realtimeTypes.PTYError
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode pty-error: %v", err)
	}
	return payload.Error
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func getJSON(t *testing.T, url string, wantStatus int, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d: %s", url, resp.StatusCode, wantStatus, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}
