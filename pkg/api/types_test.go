package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTerminalResponse_JSONFields(t *testing.T) {
	resp := TerminalResponse{
		TTY:       "pts/3",
		PID:       42,
		Command:   []string{"bash"},
		Liveness:  "running",
		Viewers:   2,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"tty", "pid", "command", "liveness", "viewers", "created_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, data)
		}
	}
}

func TestErrorResponse_OmitsEmptyDetails(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: "not found"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"error":"not found"}` {
		t.Errorf("got %s", data)
	}
}
