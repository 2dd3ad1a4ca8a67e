package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ricochet1k/ptymux/internal/domain"
	"github.com/ricochet1k/ptymux/internal/provider/pty"
	"github.com/ricochet1k/ptymux/internal/terminal"
	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultChunkBytes   = 20 * 1024
	defaultReapGrace    = 250 * time.Millisecond
)

// Broadcaster delivers an event to every member of a group.
type Broadcaster interface {
	Broadcast(group string, msg realtimeTypes.ServerEnvelope)
	// LeaveAll empties a group.
	LeaveAll(group string)
}

// Forwarder copies output from one session's master to the session's
// group until a read fails. It is the only reader of the master.
type Forwarder struct {
	session      *TerminalSession
	out          Broadcaster
	logger       *slog.Logger
	pollInterval time.Duration
	chunkBytes   int
	reapGrace    time.Duration
	decoder      *terminal.Decoder
}

func NewForwarder(session *TerminalSession, out Broadcaster, pollInterval time.Duration, chunkBytes int, logger *slog.Logger) *Forwarder {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		session:      session,
		out:          out,
		logger:       logger.With("tty", session.ID),
		pollInterval: pollInterval,
		chunkBytes:   chunkBytes,
		reapGrace:    defaultReapGrace,
		decoder:      terminal.NewDecoder(),
	}
}

// Run forwards output until the master fails or ctx is cancelled. A
// cancelled context leaves the session Running.
func (f *Forwarder) Run(ctx context.Context) {
	buf := make([]byte, f.chunkBytes)
	for {
		if ctx.Err() != nil {
			return
		}

		master := f.session.master
		if master == nil {
			if !sleepContext(ctx, f.pollInterval) {
				return
			}
			continue
		}

		ready, err := pty.WaitReadable(master, f.pollInterval)
		if err != nil {
			f.finish(ctx, err)
			return
		}
		if !ready {
			continue
		}

		n, err := master.Read(buf)
		if n > 0 {
			f.emit(f.decoder.Decode(buf[:n]))
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			f.finish(ctx, err)
			return
		}
	}
}

// finish marks the session broken and keeps waiting on a child that has
// not exited yet so it does not linger as a zombie.
func (f *Forwarder) finish(ctx context.Context, cause error) {
	if result := f.fail(cause); result.Exited {
		return
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		result, err := pty.ReapIfExited(f.session.PID)
		if err != nil || result.Exited {
			return
		}
	}
}

func (f *Forwarder) emit(text string) {
	if text == "" {
		return
	}
	f.session.publish(f.out, text)
}

func (f *Forwarder) fail(cause error) domain.ReapResult {
	f.emit(f.decoder.Flush())

	result := f.reap()
	notice := brokenPipeNotice(result)
	if err := f.session.markBroken(); err != nil {
		f.logger.Debug("session already broken", "err", err)
		return result
	}
	f.session.publish(f.out, notice)
	// Viewers must be gone from the group before the terminal name can be
	// reissued to another session.
	f.out.LeaveAll(f.session.ID)
	_ = f.session.close()

	f.logger.Error("broken pipe",
		"pid", f.session.PID,
		"reason", result.Reason.String(),
		"status", result.Status,
		"err", cause,
	)
	return result
}

// reap gives an exiting child a short window to become reapable; the read
// error can be observed before the exit status is posted.
func (f *Forwarder) reap() domain.ReapResult {
	deadline := time.Now().Add(f.reapGrace)
	for {
		result, err := pty.ReapIfExited(f.session.PID)
		if err != nil {
			if !errors.Is(err, unix.ECHILD) {
				f.logger.Debug("reap failed", "pid", f.session.PID, "err", err)
			}
			return result
		}
		if result.Exited || !time.Now().Before(deadline) {
			return result
		}
		time.Sleep(f.pollInterval)
	}
}

func brokenPipeNotice(result domain.ReapResult) string {
	switch result.Reason {
	case domain.ReapExited:
		return fmt.Sprintf("\r\nBroken pipe: %s (status %d)\r\n", result.Reason, result.Status)
	case domain.ReapKilled, domain.ReapDumped:
		return fmt.Sprintf("\r\nBroken pipe: %s (signal %d)\r\n", result.Reason, result.Status)
	default:
		return fmt.Sprintf("\r\nBroken pipe: %s\r\n", result.Reason)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
