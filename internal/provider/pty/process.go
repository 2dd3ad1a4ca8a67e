package pty

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ricochet1k/ptymux/internal/domain"
)

// IsAlive sends signal 0 to pid. Zombies that have not been reaped still
// count as alive.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return !errors.Is(err, unix.ESRCH)
}

// ReapIfExited collects the status of pid if one is pending and never blocks
// on a live process. Exited, killed and dumped children are reaped by this call.
func ReapIfExited(pid int) (domain.ReapResult, error) {
	var status unix.WaitStatus
	var (
		wpid int
		err  error
	)
	for {
		wpid, err = unix.Wait4(pid, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return domain.ReapResult{Reason: domain.ReapUnknown}, fmt.Errorf("wait4 %d: %w", pid, err)
	}
	if wpid == 0 {
		return domain.ReapResult{Reason: domain.ReapUnknown}, nil
	}
	return reapResultFromStatus(status), nil
}

func reapResultFromStatus(status unix.WaitStatus) domain.ReapResult {
	var result domain.ReapResult
	switch {
	case status.Exited():
		result.Reason = domain.ReapExited
		result.Status = status.ExitStatus()
	case status.Signaled():
		result.Reason = domain.ReapKilled
		if status.CoreDump() {
			result.Reason = domain.ReapDumped
		}
		result.Status = int(status.Signal())
	case status.Stopped():
		result.Reason = domain.ReapStopped
		if status.StopSignal() == unix.SIGTRAP {
			result.Reason = domain.ReapTrapped
		}
		result.Status = int(status.StopSignal())
	case status.Continued():
		result.Reason = domain.ReapContinued
	default:
		result.Reason = domain.ReapUnknown
	}
	result.Exited = result.Reason.Terminal()
	return result
}

// WaitReadable waits up to timeout for f to become readable. A hangup or
// error condition also counts as readable so the next read reports it.
// A zero timeout checks readiness without waiting.
func WaitReadable(f *os.File, timeout time.Duration) (bool, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return false, err
	}
	var (
		n       int
		pollErr error
		revents int16
	)
	err = rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, pollErr = unix.Poll(fds, int(timeout/time.Millisecond))
		revents = fds[0].Revents
	})
	if err != nil {
		return false, err
	}
	if pollErr != nil {
		if errors.Is(pollErr, unix.EINTR) {
			return false, nil
		}
		return false, pollErr
	}
	if n == 0 {
		return false, nil
	}
	return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0, nil
}
