// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the shared Chrome process (exec allocator) and launches one
// isolated tab per session. It implements session.Launcher.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu      sync.Mutex
	handles map[string]*Handle
	wg      sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. Allocator startup is deferred until
// the first launch is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Named("browser_manager"),
		handles: make(map[string]*Handle),
	}
	m.logger.Info("Browser manager created (allocator start deferred).")
	return m
}

// initialize builds the exec allocator shared by all session tabs.
func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Browser.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight),
		)
		for _, arg := range m.cfg.Browser.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Exec allocator created.",
			zap.Bool("headless", m.cfg.Browser.Headless),
			zap.Int("viewport_width", m.cfg.Browser.ViewportWidth),
			zap.Int("viewport_height", m.cfg.Browser.ViewportHeight))
	})
	return m.initErr
}

// Launch creates a new browser tab and returns a Handle bound to it. The
// first call also spawns the Chrome process; a launch failure is surfaced
// to the caller, who decides the session's fate.
func (m *Manager) Launch(ctx context.Context, sessionID string) (schemas.BrowserHandle, error) {
	if err := m.initialize(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Force target creation now so launch failures surface here, not on the
	// first interaction.
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	runCtx, runCancel := CombineContext(tabCtx, startCtx)
	defer runCancel()
	if err := chromedp.Run(runCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser target: %w", err)
	}

	h := newHandle(tabCtx, tabCancel, sessionID, &m.cfg.Browser, m.cfg.Stream.JPEGQuality, m.logger)
	h.onClose = func() {
		m.mu.Lock()
		delete(m.handles, sessionID)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Handle removed from manager.", zap.String("session_id", sessionID))
	}

	m.mu.Lock()
	m.handles[sessionID] = h
	m.mu.Unlock()
	m.wg.Add(1)

	m.logger.Info("Browser target launched.", zap.String("session_id", sessionID))
	return h, nil
}

// Shutdown closes all live handles and tears down the allocator.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	toClose := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		toClose = append(toClose, h)
	}
	m.mu.Unlock()

	for _, h := range toClose {
		go func(h *Handle) {
			if err := h.Close(ctx); err != nil {
				m.logger.Warn("Error closing handle during shutdown.",
					zap.String("session_id", h.sessionID), zap.Error(err))
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser targets closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for targets to close; proceeding with forceful shutdown.",
			zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period elapsed waiting for targets to close.")
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
