package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit open")

// Breaker counts consecutive failures of an operation. Once the threshold
// is reached the operation is refused until the cooldown has passed.
type Breaker struct {
	mu             sync.RWMutex
	threshold      int
	cooldownPeriod time.Duration
	failureCount   int
	cooldownUntil  time.Time
	now            func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		threshold:      threshold,
		cooldownPeriod: cooldown,
		now:            time.Now,
	}
}

// Allow returns ErrOpen while the breaker is cooling down.
func (cb *Breaker) Allow() error {
	if remaining := cb.CooldownRemaining(); remaining > 0 {
		return fmt.Errorf("%w: retry in %s", ErrOpen, remaining.Round(time.Second))
	}
	return nil
}

// Do runs fn unless the breaker is open and records its outcome.
func (cb *Breaker) Do(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordFailure returns true when this failure opened the breaker.
func (cb *Breaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	if cb.failureCount >= cb.threshold {
		cb.cooldownUntil = cb.now().Add(cb.cooldownPeriod)
		cb.failureCount = 0
		return true
	}
	return false
}

func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
}

func (cb *Breaker) IsInCooldown() bool {
	return cb.CooldownRemaining() > 0
}

func (cb *Breaker) CooldownRemaining() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if now := cb.now(); now.Before(cb.cooldownUntil) {
		return cb.cooldownUntil.Sub(now)
	}
	return 0
}

func (cb *Breaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.failureCount
}
