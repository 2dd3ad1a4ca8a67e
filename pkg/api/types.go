package api

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Sessions      int    `json:"sessions"`
	SpawnFailures int    `json:"spawn_failures"`
	SpawnCooldown bool   `json:"spawn_cooldown"`
}

// TerminalResponse describes a registered terminal session.
type TerminalResponse struct {
	TTY       string    `json:"tty"`
	PID       int       `json:"pid"`
	Command   []string  `json:"command"`
	Liveness  string    `json:"liveness"`
	Viewers   int       `json:"viewers"`
	CreatedAt time.Time `json:"created_at"`
}

type TerminalListResponse struct {
	Terminals []TerminalResponse `json:"terminals"`
}

// TerminalOutputResponse is the recent scrollback of a session.
type TerminalOutputResponse struct {
	TTY       string `json:"tty"`
	Output    string `json:"output"`
	Truncated bool   `json:"truncated"`
}
