package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ricochet1k/ptymux/internal/realtime"
	"github.com/ricochet1k/ptymux/internal/service"
	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

const maxFrameBytes = 1 << 20

var realtimeUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) realtimeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := realtimeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := realtime.NewClient(uuid.NewString(), conn)
	h.hub.Register(client)
	defer func() {
		h.hub.Unregister(client.ID())
		h.router.OnDisconnect(client.ID())
	}()

	go client.WriteLoop()
	h.router.OnConnect(client.ID())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg realtimeTypes.ClientEnvelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendRealtimeError(client, "invalid message")
			continue
		}

		if !h.dispatch(client, msg) {
			return
		}
	}
}

// dispatch routes one envelope. It returns false when the client has been
// dropped.
func (h *Handler) dispatch(client *realtime.Client, msg realtimeTypes.ClientEnvelope) bool {
	switch msg.Event {
	case realtimeTypes.ClientEventPTYInput:
		var payload realtimeTypes.PTYInput
		if err := decodeData(msg.Data, &payload); err != nil {
			return h.sendRealtimeError(client, "invalid pty-input payload")
		}
		_ = h.router.Handle(client.ID(), service.InputEvent{Data: []byte(payload.Input)})
	case realtimeTypes.ClientEventResize:
		var payload realtimeTypes.Resize
		if err := decodeData(msg.Data, &payload); err != nil {
			return h.sendRealtimeError(client, "invalid resize payload")
		}
		if err := h.router.Handle(client.ID(), service.ResizeEvent{Rows: payload.Rows, Cols: payload.Cols}); err != nil {
			return h.sendRealtimeError(client, err.Error())
		}
	case realtimeTypes.ClientEventRequestTTY:
		var payload realtimeTypes.RequestTTY
		if err := decodeData(msg.Data, &payload); err != nil {
			return h.sendRealtimeError(client, "invalid request-tty payload")
		}
		// Attach reports its own failures on the channel.
		_ = h.router.Handle(client.ID(), service.AttachEvent{TTY: payload.TTY})
	case realtimeTypes.ClientEventPing:
		return h.hub.Emit(client.ID(), realtimeTypes.ServerEnvelope{Event: realtimeTypes.ServerEventPong})
	default:
		return h.sendRealtimeError(client, "unsupported event: "+string(msg.Event))
	}
	return true
}

// decodeData treats a missing or null payload as the zero value.
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (h *Handler) sendRealtimeError(client *realtime.Client, message string) bool {
	return h.hub.Emit(client.ID(), realtimeTypes.Error(message))
}
