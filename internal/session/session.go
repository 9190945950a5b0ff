// internal/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

// Session is one addressable automation context bound to a single live
// browser handle. Its id doubles as the bearer capability token.
type Session struct {
	ID        string
	CreatedAt time.Time
	Options   schemas.SessionOptions

	logger *zap.Logger

	// runMu is the exclusive execution lock: at most one loop or
	// single-step call per session. TryLock failure maps to SessionBusy;
	// there is no queuing.
	runMu sync.Mutex

	// mu guards the mutable fields below.
	mu        sync.Mutex
	status    schemas.SessionStatus
	handle    schemas.BrowserHandle
	cancelRun context.CancelFunc

	releaseOnce sync.Once
	releaseSlot func()
}

// Status returns the current lifecycle status.
func (s *Session) Status() schemas.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st schemas.SessionStatus) {
	s.mu.Lock()
	prev := s.status
	s.status = st
	s.mu.Unlock()
	s.logger.Debug("Session status transition.",
		zap.String("from", string(prev)), zap.String("to", string(st)))
}

// MarkError transitions the session to the error state after a fatal
// failure. Error is terminal except for the transition to closed.
func (s *Session) MarkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == schemas.SessionClosed || s.status == schemas.SessionClosing {
		return
	}
	s.status = schemas.SessionError
	s.logger.Warn("Session entered error state.")
}

// Handle returns the session's browser handle.
func (s *Session) Handle() schemas.BrowserHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Info returns the externally visible view of the session.
func (s *Session) Info() schemas.SessionInfo {
	return schemas.SessionInfo{
		SessionID: s.ID,
		Status:    s.Status(),
		CreatedAt: s.CreatedAt,
	}
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// BeginRun acquires the session's exclusive execution lock and derives the
// run context that Close uses for cooperative cancellation. It fails
// immediately with ErrSessionBusy when another loop or step call is in
// flight, and with ErrSessionClosed when the session is not active.
// The returned release func must be called exactly once.
func (s *Session) BeginRun(ctx context.Context) (context.Context, func(), error) {
	if !s.runMu.TryLock() {
		return nil, nil, schemas.ErrSessionBusy
	}

	s.mu.Lock()
	if s.status != schemas.SessionActive {
		s.mu.Unlock()
		s.runMu.Unlock()
		return nil, nil, schemas.ErrSessionClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.cancelRun = nil
		s.mu.Unlock()
		cancel()
		s.runMu.Unlock()
	}
	return runCtx, release, nil
}

// CancelRun requests cooperative cancellation of any in-flight run. The
// current step is always allowed to finish.
func (s *Session) CancelRun() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WithRunLock executes fn while holding the exclusive execution lock.
// Used to serialize frame capture behind interactions for drivers that
// cannot service concurrent reads.
func (s *Session) WithRunLock(fn func() error) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return fn()
}
