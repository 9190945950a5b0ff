// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

const closeGracePeriod = 10 * time.Second

// Launcher is the external browser collaborator boundary: it turns a
// session id into a live browser handle.
type Launcher interface {
	Launch(ctx context.Context, sessionID string) (schemas.BrowserHandle, error)
}

// Manager owns session lifecycle: creation under a launch-capacity
// semaphore, lookup by capability token, and idempotent close.
type Manager struct {
	cfg      *config.Config
	logger   *zap.Logger
	launcher Launcher
	capacity *semaphore.Weighted

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager with the configured launch capacity.
func NewManager(cfg *config.Config, launcher Launcher, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("session_manager"),
		launcher: launcher,
		capacity: semaphore.NewWeighted(int64(cfg.Browser.Concurrency)),
		sessions: make(map[string]*Session),
	}
}

// Create allocates a session id, launches a browser handle for it, and
// registers the session. Fails with ErrResourceExhausted when no launch
// capacity is available; a launch failure leaves the session in the error
// state and is surfaced to the caller.
func (m *Manager) Create(ctx context.Context, opts schemas.SessionOptions) (*Session, error) {
	if !m.capacity.TryAcquire(1) {
		return nil, schemas.ErrResourceExhausted
	}

	id := uuid.NewString()
	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Options:   opts,
		logger:    m.logger.With(zap.String("session_id", id)),
		status:    schemas.SessionInitializing,
	}
	s.releaseSlot = func() { m.capacity.Release(1) }

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	handle, err := m.launcher.Launch(ctx, id)
	if err != nil {
		s.MarkError()
		s.releaseOnce.Do(s.releaseSlot)
		return nil, fmt.Errorf("browser launch failed: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.status = schemas.SessionActive
	s.mu.Unlock()

	s.logger.Info("Session created.",
		zap.Bool("capture_video", opts.CaptureVideo),
		zap.Bool("keep_artifacts", opts.KeepArtifacts))
	return s, nil
}

// Get resolves a capability token to its session. Unknown or purged ids
// fail with ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return s, nil
}

// Close shuts a session down. It is idempotent: closing an already-closed
// session succeeds with no side effect. Any in-flight loop is cancelled
// cooperatively, the current step is allowed to finish, and the browser
// handle and capacity slot are released on every exit path.
func (m *Manager) Close(ctx context.Context, id string, keepArtifacts bool) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.status {
	case schemas.SessionClosed, schemas.SessionClosing:
		s.mu.Unlock()
		return nil
	}
	s.status = schemas.SessionClosing
	cancel := s.cancelRun
	handle := s.handle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Wait for the in-flight step to finish. No forced interruption.
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if handle != nil {
		closeCtx, closeCancel := context.WithTimeout(ctx, closeGracePeriod)
		defer closeCancel()
		if err := handle.Close(closeCtx); err != nil {
			// The handle may already be dead; release proceeds regardless.
			s.logger.Warn("Error closing browser handle.", zap.Error(err))
		}
	}

	s.setStatus(schemas.SessionClosed)
	s.releaseOnce.Do(s.releaseSlot)
	s.logger.Info("Session closed.", zap.Bool("keep_artifacts", keepArtifacts))
	return nil
}

// CloseAll closes every known session. Used during shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Close(ctx, id, false); err != nil {
				m.logger.Warn("Error closing session during shutdown.",
					zap.String("session_id", id), zap.Error(err))
			}
		}(id)
	}
	wg.Wait()
}
