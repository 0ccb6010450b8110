package lock

import (
	"sync"
	"sync/atomic"
)

// RWLock is a read/write lock that knows whether anyone holds it,
// the pool only recycles locks nobody holds.
// It is not reentrant.
type RWLock struct {
	mu      sync.RWMutex
	readers atomic.Int32
	writer  atomic.Bool
}

func NewRWLock() *RWLock {
	return &RWLock{}
}

func (l *RWLock) RLock() {
	l.mu.RLock()
	l.readers.Add(1)
}

func (l *RWLock) RUnlock() {
	l.readers.Add(-1)
	l.mu.RUnlock()
}

func (l *RWLock) Lock() {
	l.mu.Lock()
	l.writer.Store(true)
}

func (l *RWLock) Unlock() {
	l.writer.Store(false)
	l.mu.Unlock()
}

func (l *RWLock) Readers() int {
	return int(l.readers.Load())
}

func (l *RWLock) IsWriteLocked() bool {
	return l.writer.Load()
}

// isFree is the pool validator
func isFree(l *RWLock) bool {
	return l.Readers() == 0 && !l.IsWriteLocked()
}
