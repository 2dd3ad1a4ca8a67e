package api

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

func TestRealtimeWebSocket_BannerThenNewSession(t *testing.T) {
	env := newTestEnv(t, "/")
	c := env.dial(t)

	first := c.read()
	if first.Event != realtimeTypes.ServerEventPTYOutput {
		t.Fatalf("first event = %q, want pty-output", first.Event)
	}
	if got := decodeOutput(t, first); got != "welcome\r\n" {
		t.Fatalf("banner = %q", got)
	}

	connect := c.attach(nil)
	if !strings.HasPrefix(connect.TTY, "pts/") {
		t.Fatalf("tty = %q, want pts/ prefix", connect.TTY)
	}
	if connect.RequestHonored != nil {
		t.Fatalf("requestHonored = %v, want absent for a fresh request", *connect.RequestHonored)
	}

	c.send(realtimeTypes.ClientEventPTYInput, realtimeTypes.PTYInput{Input: "hello\n"})
	c.readOutputContaining("hello")
}

func TestRealtimeWebSocket_ReattachReplaysTail(t *testing.T) {
	env := newTestEnv(t, "/")
	first := env.dial(t)
	connect := first.attach(nil)

	first.send(realtimeTypes.ClientEventPTYInput, realtimeTypes.PTYInput{Input: "marker\n"})
	first.readOutputContaining("marker")
	waitFor(t, "tail to record output", func() bool {
		out, err := env.router.Scrollback(connect.TTY)
		return err == nil && strings.Contains(out.Output, "marker")
	})

	second := env.dial(t)
	if banner := decodeOutput(t, second.read()); banner != "welcome\r\n" {
		t.Fatalf("banner = %q", banner)
	}
	tty := connect.TTY
	second.send(realtimeTypes.ClientEventRequestTTY, realtimeTypes.RequestTTY{TTY: &tty})
	f, replay := second.readUntil(realtimeTypes.ServerEventPTYConnect)
	got := decodeConnect(t, f)
	if got.TTY != tty {
		t.Fatalf("reattached to %q, want %q", got.TTY, tty)
	}
	if got.RequestHonored == nil || !*got.RequestHonored {
		t.Fatalf("requestHonored = %v, want true", got.RequestHonored)
	}
	if !strings.HasPrefix(replay, "\r\n") || !strings.Contains(replay, "marker") {
		t.Fatalf("replayed tail = %q", replay)
	}
	if env.router.Registry().Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", env.router.Registry().Len())
	}

	first.send(realtimeTypes.ClientEventPTYInput, realtimeTypes.PTYInput{Input: "shared\n"})
	second.readOutputContaining("shared")
}

func TestRealtimeWebSocket_UnknownTTYStartsNewSession(t *testing.T) {
	env := newTestEnv(t, "/")
	c := env.dial(t)

	missing := "pts/9999"
	c.send(realtimeTypes.ClientEventRequestTTY, realtimeTypes.RequestTTY{TTY: &missing})
	f, output := c.readUntil(realtimeTypes.ServerEventPTYConnect)
	got := decodeConnect(t, f)
	if got.TTY == missing || got.TTY == "" {
		t.Fatalf("tty = %q, want a new session", got.TTY)
	}
	if got.RequestHonored == nil || *got.RequestHonored {
		t.Fatalf("requestHonored = %v, want false", got.RequestHonored)
	}
	if !strings.Contains(output, "pts/9999 is not available") {
		t.Fatalf("output = %q, want unavailable notice", output)
	}
}

func TestRealtimeWebSocket_PingAndInvalidFrames(t *testing.T) {
	env := newTestEnv(t, "/")
	c := env.dial(t)
	c.read() // banner

	c.send(realtimeTypes.ClientEventPing, nil)
	if f := c.read(); f.Event != realtimeTypes.ServerEventPong {
		t.Fatalf("event = %q, want pong", f.Event)
	}

	c.send("bogus", nil)
	f := c.read()
	if f.Event != realtimeTypes.ServerEventPTYError || !strings.Contains(decodeError(t, f), "unsupported event") {
		t.Fatalf("unexpected reply to unknown event: %+v", f)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}
	f = c.read()
	if f.Event != realtimeTypes.ServerEventPTYError || decodeError(t, f) != "invalid message" {
		t.Fatalf("unexpected reply to invalid frame: %+v", f)
	}

	c.attach(nil)
	c.send(realtimeTypes.ClientEventResize, realtimeTypes.Resize{Rows: 0, Cols: 80})
	f, _ = c.readUntil(realtimeTypes.ServerEventPTYError)
	if f.Event != realtimeTypes.ServerEventPTYError || !strings.Contains(decodeError(t, f), "invalid window size") {
		t.Fatalf("unexpected reply to bad resize: %+v", f)
	}
}

func TestRealtimeWebSocket_UnboundInputAndResizeAreDropped(t *testing.T) {
	env := newTestEnv(t, "/")
	c := env.dial(t)
	c.read() // banner

	c.send(realtimeTypes.ClientEventPTYInput, realtimeTypes.PTYInput{Input: "ignored\n"})
	c.send(realtimeTypes.ClientEventResize, realtimeTypes.Resize{Rows: 0, Cols: 0})
	c.send(realtimeTypes.ClientEventPing, nil)
	if f := c.read(); f.Event != realtimeTypes.ServerEventPong {
		t.Fatalf("event = %q, want pong", f.Event)
	}
	if env.router.Registry().Len() != 0 {
		t.Fatalf("input created a session")
	}
}
