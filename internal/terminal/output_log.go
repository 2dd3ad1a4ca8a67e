package terminal

import (
	"sync"
)

// OutputLog keeps the most recent output of a session in a ring buffer so
// long-running shells do not grow memory without bound.
type OutputLog struct {
	mu        sync.RWMutex
	buffer    []byte
	writePos  int
	wrapped   bool
	truncated bool
}

func NewOutputLog(size int) *OutputLog {
	if size <= 0 {
		size = 1
	}
	return &OutputLog{buffer: make([]byte, size)}
}

func (l *OutputLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(p)
	size := len(l.buffer)
	if len(p) >= size {
		// Only the tail of an oversized write survives.
		copy(l.buffer, p[len(p)-size:])
		l.writePos = 0
		l.wrapped = true
		l.truncated = true
		return n, nil
	}
	for len(p) > 0 {
		c := copy(l.buffer[l.writePos:], p)
		p = p[c:]
		l.writePos += c
		if l.writePos == size {
			l.writePos = 0
			l.wrapped = true
			l.truncated = true
		}
	}
	return n, nil
}

func (l *OutputLog) WriteString(s string) (int, error) {
	return l.Write([]byte(s))
}

// ReadAll returns the captured output in write order and whether older
// output was dropped.
func (l *OutputLog) ReadAll() (output string, truncated bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.wrapped {
		return string(l.buffer[:l.writePos]), l.truncated
	}
	return string(l.buffer[l.writePos:]) + string(l.buffer[:l.writePos]), l.truncated
}
