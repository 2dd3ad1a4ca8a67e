package realtime

import "encoding/json"

// ClientEventName is the name of an event sent by a viewer.
type ClientEventName string

const (
	ClientEventPTYInput   ClientEventName = "pty-input"
	ClientEventResize     ClientEventName = "resize"
	ClientEventRequestTTY ClientEventName = "request-tty"
	ClientEventPing       ClientEventName = "ping"
)

// ServerEventName is the name of an event sent to a viewer.
type ServerEventName string

const (
	ServerEventPTYOutput  ServerEventName = "pty-output"
	ServerEventPTYConnect ServerEventName = "pty-connect"
	ServerEventPTYError   ServerEventName = "pty-error"
	ServerEventPong       ServerEventName = "pong"
)

// ClientEnvelope is a single inbound frame on the event channel.
type ClientEnvelope struct {
	Event ClientEventName `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEnvelope is a single outbound frame on the event channel.
type ServerEnvelope struct {
	Event ServerEventName `json:"event"`
	Data  any             `json:"data,omitempty"`
}

type PTYInput struct {
	Input string `json:"input"`
}

type Resize struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// RequestTTY asks to attach to a named session. A nil TTY requests a new one.
type RequestTTY struct {
	TTY *string `json:"tty"`
}

type PTYOutput struct {
	Output string `json:"output"`
}

type PTYConnect struct {
	TTY            string `json:"tty"`
	RequestHonored *bool  `json:"requestHonored,omitempty"`
}

type PTYError struct {
	Error string `json:"error"`
}

func Output(text string) ServerEnvelope {
	return ServerEnvelope{Event: ServerEventPTYOutput, Data: PTYOutput{Output: text}}
}

func Connect(tty string, honored *bool) ServerEnvelope {
	return ServerEnvelope{Event: ServerEventPTYConnect, Data: PTYConnect{TTY: tty, RequestHonored: honored}}
}

func Error(message string) ServerEnvelope {
	return ServerEnvelope{Event: ServerEventPTYError, Data: PTYError{Error: message}}
}
