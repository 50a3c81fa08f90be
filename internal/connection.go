package internal

import (
	"context"
	"sync"
)

// ConnectionManager runs a session initialiser once per session. It ensures
// that initialization happens exactly once, even when called concurrently
// from multiple goroutines, until Reset starts a new session.
type ConnectionManager struct {
	mu      sync.Mutex
	attempt *initAttempt
}

type initAttempt struct {
	once  sync.Once
	err   error
	ready chan struct{}
}

func newInitAttempt() *initAttempt {
	return &initAttempt{ready: make(chan struct{})}
}

// NewConnectionManager creates a new ConnectionManager instance ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{attempt: newInitAttempt()}
}

func (cm *ConnectionManager) current() *initAttempt {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.attempt
}

// Initialize runs the provided initialization function once per session.
// Concurrent callers wait for the running attempt and share its result.
//
// The context passed to the first call will be used for initialization.
// A failed attempt is discarded so the next call tries again.
func (cm *ConnectionManager) Initialize(ctx context.Context, fn func(context.Context) error) error {
	attempt := cm.current()

	attempt.once.Do(func() {
		attempt.err = fn(ctx)
		close(attempt.ready)
	})

	// Wait for initialization to complete if called concurrently
	<-attempt.ready

	if attempt.err != nil {
		cm.mu.Lock()
		if cm.attempt == attempt {
			cm.attempt = newInitAttempt()
		}
		cm.mu.Unlock()
	}
	return attempt.err
}

// Reset forgets the current session so the next Initialize runs fn again.
func (cm *ConnectionManager) Reset() {
	cm.mu.Lock()
	cm.attempt = newInitAttempt()
	cm.mu.Unlock()
}

// IsInitialized returns true if the current session initialised successfully.
func (cm *ConnectionManager) IsInitialized() bool {
	attempt := cm.current()
	select {
	case <-attempt.ready:
		return attempt.err == nil
	default:
		return false
	}
}
