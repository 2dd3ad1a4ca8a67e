package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ricochet1k/ptymux/internal/provider/circuit"
	"github.com/ricochet1k/ptymux/internal/provider/pty"
	apiTypes "github.com/ricochet1k/ptymux/pkg/api"
	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

var (
	ErrSpawnCooldown = errors.New("terminal spawning paused after repeated failures")
	ErrInvalidSize   = errors.New("invalid window size")
)

const DefaultBanner = "Connected to ptymux."

// Transport is the connection side of the event channel: per-connection
// delivery plus broadcast group membership.
type Transport interface {
	Broadcaster
	Emit(connID string, msg realtimeTypes.ServerEnvelope) bool
	Join(connID, group string) bool
	Leave(connID, group string) bool
	Groups(connID string) []string
	Members(group string) int
}

// Spawner starts a command on a new pseudo-terminal.
type Spawner interface {
	Spawn(argv []string) (*pty.Process, error)
}

// Event is an inbound client event. The set of implementations is closed.
type Event interface {
	isEvent()
}

type InputEvent struct {
	Data []byte
}

type ResizeEvent struct {
	Rows int
	Cols int
}

// AttachEvent asks to view a session. A nil TTY asks for a new one.
type AttachEvent struct {
	TTY *string
}

func (InputEvent) isEvent()  {}
func (ResizeEvent) isEvent() {}
func (AttachEvent) isEvent() {}

type RouterConfig struct {
	Argv                  []string
	Banner                string
	PollInterval          time.Duration
	ChunkBytes            int
	ScrollbackBytes       int
	SpawnFailureThreshold int
	SpawnCooldown         time.Duration
}

// Router binds connections to terminal sessions and routes their events.
type Router struct {
	ctx       context.Context
	registry  *Registry
	transport Transport
	spawner   Spawner
	breaker   *circuit.Breaker
	cfg       RouterConfig
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewRouter creates a Router. Forwarders it starts stop when ctx is done.
func NewRouter(ctx context.Context, registry *Registry, transport Transport, spawner Spawner, cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Banner == "" {
		cfg.Banner = DefaultBanner
	}
	if cfg.ScrollbackBytes <= 0 {
		cfg.ScrollbackBytes = 64 * 1024
	}
	if cfg.SpawnFailureThreshold <= 0 {
		cfg.SpawnFailureThreshold = 3
	}
	if cfg.SpawnCooldown <= 0 {
		cfg.SpawnCooldown = 30 * time.Second
	}
	return &Router{
		ctx:       ctx,
		registry:  registry,
		transport: transport,
		spawner:   spawner,
		breaker:   circuit.NewBreaker(cfg.SpawnFailureThreshold, cfg.SpawnCooldown),
		cfg:       cfg,
		logger:    logger,
	}
}

func (r *Router) Registry() *Registry {
	return r.registry
}

// Wait blocks until every forwarder started by the router has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Handle dispatches one client event.
func (r *Router) Handle(connID string, ev Event) error {
	switch ev := ev.(type) {
	case InputEvent:
		r.Input(connID, ev.Data)
		return nil
	case ResizeEvent:
		return r.Resize(connID, ev.Rows, ev.Cols)
	case AttachEvent:
		return r.Attach(connID, ev.TTY)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// OnConnect greets a new connection and drops any membership in groups
// whose session is gone.
func (r *Router) OnConnect(connID string) {
	r.logger.Info("client connected", "conn", connID)
	r.transport.Emit(connID, realtimeTypes.Output(r.cfg.Banner+"\r\n"))
	for _, group := range r.transport.Groups(connID) {
		if s, ok := r.registry.Get(group); ok && s.Alive() {
			continue
		}
		r.transport.Leave(connID, group)
	}
}

// OnDisconnect leaves sessions running for later reattachment.
func (r *Router) OnDisconnect(connID string) {
	r.logger.Info("client disconnected", "conn", connID)
}

// Attach binds connID to the requested session, or to a new one when the
// request is nil or names a session that is gone.
func (r *Router) Attach(connID string, requested *string) error {
	if requested != nil && *requested == "" {
		requested = nil
	}

	groups := r.transport.Groups(connID)
	if len(groups) > 0 {
		if requested == nil && len(groups) == 1 {
			if s, ok := r.registry.Get(groups[0]); ok && s.Alive() {
				r.transport.Emit(connID, realtimeTypes.Connect(s.ID, nil))
				return nil
			}
		}
		for _, group := range groups {
			r.transport.Leave(connID, group)
		}
	}

	var honored *bool
	if requested != nil {
		if s, ok := r.registry.Get(*requested); ok && s.Alive() {
			s.withTail(func(tail string) {
				r.transport.Emit(connID, realtimeTypes.Output("\r\n"+tail))
				r.transport.Join(connID, s.ID)
			})
			r.transport.Emit(connID, realtimeTypes.Connect(s.ID, boolPtr(true)))
			r.logger.Info("client reattached", "conn", connID, "tty", s.ID)
			return nil
		}
		r.logger.Info("requested terminal unavailable", "conn", connID, "tty", *requested)
		r.transport.Emit(connID, realtimeTypes.Output(fmt.Sprintf("\r\nTerminal %s is not available, starting a new session.\r\n", *requested)))
		honored = boolPtr(false)
	}

	r.transport.Emit(connID, realtimeTypes.Output("\r\n"))
	s, err := r.createSession()
	if err != nil {
		r.logger.Error("spawn failed", "conn", connID, "argv", r.cfg.Argv, "err", err)
		r.transport.Emit(connID, realtimeTypes.Error(err.Error()))
		return err
	}
	r.transport.Join(connID, s.ID)
	r.transport.Emit(connID, realtimeTypes.Connect(s.ID, honored))
	return nil
}

func (r *Router) createSession() (*TerminalSession, error) {
	var proc *pty.Process
	err := r.breaker.Do(func() error {
		var err error
		proc, err = r.spawner.Spawn(r.cfg.Argv)
		return err
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return nil, fmt.Errorf("%w: %w", ErrSpawnCooldown, err)
		}
		return nil, err
	}

	s := NewTerminalSession(proc, r.cfg.Argv, r.cfg.ScrollbackBytes)
	replaced, err := r.registry.Register(s)
	if err != nil {
		s.hangup()
		_ = s.close()
		return nil, err
	}
	if replaced != nil {
		r.logger.Debug("replaced broken session", "tty", s.ID, "old_pid", replaced.PID)
	}

	r.startForwarder(s)
	r.logger.Info("terminal session started", "tty", s.ID, "pid", s.PID, "argv", s.Command)
	return s, nil
}

func (r *Router) startForwarder(s *TerminalSession) {
	f := NewForwarder(s, r.transport, r.cfg.PollInterval, r.cfg.ChunkBytes, r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		f.Run(r.ctx)
	}()
}

func (r *Router) boundSessions(connID string) []*TerminalSession {
	groups := r.transport.Groups(connID)
	out := make([]*TerminalSession, 0, len(groups))
	for _, group := range groups {
		if s, ok := r.registry.Get(group); ok && s.Alive() {
			out = append(out, s)
		}
	}
	return out
}

// Input writes data to every live session connID is bound to. Input from
// an unbound connection is dropped.
func (r *Router) Input(connID string, data []byte) {
	sessions := r.boundSessions(connID)
	if len(sessions) == 0 {
		r.logger.Debug("input dropped, no live session", "conn", connID)
		return
	}
	for _, s := range sessions {
		if _, err := s.Write(data); err != nil {
			r.logger.Warn("terminal write failed", "tty", s.ID, "conn", connID, "err", err)
		}
	}
}

// Resize applies a window size to every live session connID is bound to.
// Resizes from an unbound connection are dropped before validation.
func (r *Router) Resize(connID string, rows, cols int) error {
	sessions := r.boundSessions(connID)
	if len(sessions) == 0 {
		r.logger.Debug("resize dropped, no live session", "conn", connID)
		return nil
	}
	if rows <= 0 || cols <= 0 || rows > math.MaxUint16 || cols > math.MaxUint16 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, rows, cols)
	}
	for _, s := range sessions {
		if err := s.Resize(uint16(rows), uint16(cols)); err != nil {
			r.logger.Warn("terminal resize failed", "tty", s.ID, "conn", connID, "err", err)
		}
	}
	return nil
}

// SpawnStatus reports consecutive spawn failures and whether spawning is
// paused.
func (r *Router) SpawnStatus() (failures int, coolingDown bool) {
	return r.breaker.FailureCount(), r.breaker.IsInCooldown()
}

// Summaries describes every registered session.
func (r *Router) Summaries() []apiTypes.TerminalResponse {
	sessions := r.registry.List()
	out := make([]apiTypes.TerminalResponse, len(sessions))
	for i, s := range sessions {
		out[i] = r.summary(s)
	}
	return out
}

func (r *Router) Summary(id string) (apiTypes.TerminalResponse, error) {
	s, ok := r.registry.Get(id)
	if !ok {
		return apiTypes.TerminalResponse{}, ErrSessionNotFound
	}
	return r.summary(s), nil
}

func (r *Router) summary(s *TerminalSession) apiTypes.TerminalResponse {
	return apiTypes.TerminalResponse{
		TTY:       s.ID,
		PID:       s.PID,
		Command:   s.Command,
		Liveness:  s.Liveness().String(),
		Viewers:   r.transport.Members(s.ID),
		CreatedAt: s.CreatedAt,
	}
}

func (r *Router) Scrollback(id string) (apiTypes.TerminalOutputResponse, error) {
	s, ok := r.registry.Get(id)
	if !ok {
		return apiTypes.TerminalOutputResponse{}, ErrSessionNotFound
	}
	output, truncated := s.Scrollback()
	return apiTypes.TerminalOutputResponse{TTY: s.ID, Output: output, Truncated: truncated}, nil
}

// Remove unregisters a session, hanging up its process if it is still
// running and releasing its terminal.
func (r *Router) Remove(id string) error {
	s, ok := r.registry.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.hangup()
	if err := s.close(); err != nil {
		r.logger.Warn("closing terminal failed", "tty", id, "err", err)
	}
	r.logger.Info("terminal session removed", "tty", id, "pid", s.PID)
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}
