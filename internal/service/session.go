package service

import (
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ricochet1k/ptymux/internal/domain"
	"github.com/ricochet1k/ptymux/internal/provider/pty"
	"github.com/ricochet1k/ptymux/internal/terminal"
	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

var ErrSessionBroken = errors.New("session is broken")

// TerminalSession is a process running on a pseudo-terminal. Its master is
// read by the session's forwarder and written by routed input.
type TerminalSession struct {
	ID        string
	PID       int
	Command   []string
	CreatedAt time.Time

	master     *os.File
	scrollback *terminal.OutputLog

	// outputMu orders publishing a chunk against reading the tail and
	// joining the group on reattach.
	outputMu sync.Mutex

	mu        sync.Mutex
	tail      string
	liveness  domain.Liveness
	closeOnce sync.Once
}

func NewTerminalSession(proc *pty.Process, argv []string, scrollbackBytes int) *TerminalSession {
	command := make([]string, len(argv))
	copy(command, argv)
	return &TerminalSession{
		ID:         proc.TTY,
		PID:        proc.PID,
		Command:    command,
		CreatedAt:  time.Now(),
		master:     proc.Master,
		scrollback: terminal.NewOutputLog(scrollbackBytes),
		liveness:   domain.LivenessRunning,
	}
}

func (s *TerminalSession) Liveness() domain.Liveness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveness
}

// Tail is the output after the last newline seen so far.
func (s *TerminalSession) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail
}

// Alive reports whether the session is still usable.
func (s *TerminalSession) Alive() bool {
	return s.Liveness() == domain.LivenessRunning && pty.IsAlive(s.PID)
}

// Scrollback returns recent output and whether older output was dropped.
func (s *TerminalSession) Scrollback() (string, bool) {
	return s.scrollback.ReadAll()
}

func (s *TerminalSession) Write(p []byte) (int, error) {
	if s.master == nil {
		return 0, os.ErrInvalid
	}
	if s.Liveness() == domain.LivenessBroken {
		return 0, ErrSessionBroken
	}
	return s.master.Write(p)
}

func (s *TerminalSession) Resize(rows, cols uint16) error {
	if s.master == nil {
		return os.ErrInvalid
	}
	if s.Liveness() == domain.LivenessBroken {
		return ErrSessionBroken
	}
	return pty.SetWindowSize(s.master, rows, cols)
}

// publish broadcasts chunk to the session's group and records it in the
// tail and scrollback as one step.
func (s *TerminalSession) publish(out Broadcaster, chunk string) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	s.appendOutput(chunk)
	out.Broadcast(s.ID, realtimeTypes.Output(chunk))
}

// withTail runs fn with the current tail while no output is published.
func (s *TerminalSession) withTail(fn func(tail string)) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	fn(s.Tail())
}

func (s *TerminalSession) appendOutput(chunk string) {
	s.mu.Lock()
	s.tail = terminal.UpdateTail(s.tail, chunk)
	s.mu.Unlock()
	_, _ = s.scrollback.WriteString(chunk)
}

// markBroken moves the session to Broken. A session that is already broken
// returns domain.ErrInvalidTransition.
func (s *TerminalSession) markBroken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.CanTransition(s.liveness, domain.LivenessBroken) {
		return domain.NewInvalidTransitionError(s.liveness, domain.LivenessBroken)
	}
	s.liveness = domain.LivenessBroken
	return nil
}

// close releases the master so the OS can reuse the terminal name.
func (s *TerminalSession) close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.master != nil {
			err = s.master.Close()
		}
	})
	return err
}

// hangup signals the controlling process the way a closed terminal would.
func (s *TerminalSession) hangup() {
	if pty.IsAlive(s.PID) {
		_ = unix.Kill(s.PID, unix.SIGHUP)
	}
}
