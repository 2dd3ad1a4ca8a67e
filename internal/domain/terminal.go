package domain

import (
	"errors"
	"fmt"
)

// Liveness records whether a terminal session can still be used.
// It moves from Running to Broken once and never back.
type Liveness int

const (
	LivenessRunning Liveness = iota
	LivenessBroken
)

func (l Liveness) String() string {
	switch l {
	case LivenessRunning:
		return "running"
	case LivenessBroken:
		return "broken"
	default:
		return "unknown"
	}
}

var ErrInvalidTransition = errors.New("invalid liveness transition")

// CanTransition reports whether a session may move from one liveness to another.
func CanTransition(from, to Liveness) bool {
	return from == LivenessRunning && to == LivenessBroken
}

func NewInvalidTransitionError(from, to Liveness) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ReapReason is the exit disposition reported for a child process.
type ReapReason int

const (
	ReapUnknown ReapReason = iota
	ReapExited
	ReapKilled
	ReapDumped
	ReapTrapped
	ReapStopped
	ReapContinued
)

func (r ReapReason) String() string {
	switch r {
	case ReapExited:
		return "Exited"
	case ReapKilled:
		return "Killed"
	case ReapDumped:
		return "Dumped"
	case ReapTrapped:
		return "Trapped"
	case ReapStopped:
		return "Stopped"
	case ReapContinued:
		return "Continued"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the process has finished for good.
func (r ReapReason) Terminal() bool {
	switch r {
	case ReapExited, ReapKilled, ReapDumped:
		return true
	default:
		return false
	}
}

// ReapResult is the outcome of a non-blocking wait on a child process.
type ReapResult struct {
	Exited bool
	Reason ReapReason
	// Status is the exit code for ReapExited and the signal number for
	// ReapKilled and ReapDumped.
	Status int
}
