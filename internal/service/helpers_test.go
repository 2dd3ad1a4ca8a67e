package service

import (
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records every delivered event per connection.
type fakeTransport struct {
	mu       sync.Mutex
	groups   map[string]map[string]struct{}
	received map[string][]realtimeTypes.ServerEnvelope
}

func newFakeTransport(connIDs ...string) *fakeTransport {
	ft := &fakeTransport{
		groups:   make(map[string]map[string]struct{}),
		received: make(map[string][]realtimeTypes.ServerEnvelope),
	}
	for _, id := range connIDs {
		ft.groups[id] = make(map[string]struct{})
	}
	return ft
}

func (ft *fakeTransport) Emit(connID string, msg realtimeTypes.ServerEnvelope) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if _, ok := ft.groups[connID]; !ok {
		return false
	}
	ft.received[connID] = append(ft.received[connID], msg)
	return true
}

func (ft *fakeTransport) Broadcast(group string, msg realtimeTypes.ServerEnvelope) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for connID, groups := range ft.groups {
		if _, ok := groups[group]; ok {
			ft.received[connID] = append(ft.received[connID], msg)
		}
	}
}

func (ft *fakeTransport) LeaveAll(group string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, groups := range ft.groups {
		delete(groups, group)
	}
}

func (ft *fakeTransport) Join(connID, group string) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	groups, ok := ft.groups[connID]
	if !ok {
		return false
	}
	groups[group] = struct{}{}
	return true
}

func (ft *fakeTransport) Leave(connID, group string) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	groups, ok := ft.groups[connID]
	if !ok {
		return false
	}
	delete(groups, group)
	return true
}

func (ft *fakeTransport) Groups(connID string) []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([]string, 0)
	for group := range ft.groups[connID] {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

func (ft *fakeTransport) Members(group string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for _, groups := range ft.groups {
		if _, ok := groups[group]; ok {
			n++
		}
	}
	return n
}

func (ft *fakeTransport) messages(connID string) []realtimeTypes.ServerEnvelope {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([]realtimeTypes.ServerEnvelope, len(ft.received[connID]))
	copy(out, ft.received[connID])
	return out
}

func (ft *fakeTransport) reset(connID string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.received[connID] = nil
}

func (ft *fakeTransport) output(connID string) string {
	var b strings.Builder
	for _, msg := range ft.messages(connID) {
		if out, ok := msg.Data.(realtimeTypes.PTYOutput); ok {
			b.WriteString(out.Output)
		}
	}
	return b.String()
}

func (ft *fakeTransport) connects(connID string) []realtimeTypes.PTYConnect {
	var out []realtimeTypes.PTYConnect
	for _, msg := range ft.messages(connID) {
		if c, ok := msg.Data.(realtimeTypes.PTYConnect); ok {
			out = append(out, c)
		}
	}
	return out
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
