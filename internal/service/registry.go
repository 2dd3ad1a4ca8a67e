package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ricochet1k/ptymux/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Registry is the set of known terminal sessions keyed by terminal id.
// Broken sessions stay registered until removed explicitly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*TerminalSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*TerminalSession)}
}

func (r *Registry) Get(id string) (*TerminalSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Register adds s. A broken session with the same id is replaced and
// returned; a running one is never replaced.
func (r *Registry) Register(s *TerminalSession) (*TerminalSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[s.ID]
	if ok && existing != s && existing.Liveness() == domain.LivenessRunning {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}
	r.sessions[s.ID] = s
	if ok && existing != s {
		return existing, nil
	}
	return nil, nil
}

func (r *Registry) Remove(id string) (*TerminalSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// List returns sessions ordered by id.
func (r *Registry) List() []*TerminalSession {
	r.mu.RLock()
	out := make([]*TerminalSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
