// internal/browser/handle.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

// Handle wraps one browser tab and implements schemas.BrowserHandle.
type Handle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	cfg       *config.BrowserConfig
	// jpegQuality applies to viewport captures; zero falls back to 60.
	jpegQuality int
	logger      *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserHandle = (*Handle)(nil)

func newHandle(ctx context.Context, cancel context.CancelFunc, sessionID string, cfg *config.BrowserConfig, jpegQuality int, logger *zap.Logger) *Handle {
	return &Handle{
		ctx:         ctx,
		cancel:      cancel,
		sessionID:   sessionID,
		cfg:         cfg,
		jpegQuality: jpegQuality,
		logger:      logger.Named("handle").With(zap.String("session_id", sessionID)),
	}
}

// runActions executes chromedp actions, respecting both the tab lifetime
// (h.ctx) and the incoming request context.
func (h *Handle) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// selector converts a Locator into a CSS selector. Coordinate locators have
// no selector form and are handled by the pointer-event paths.
func selector(target schemas.Locator) string {
	if target.By == schemas.ByID {
		return "#" + target.Value
	}
	return target.Value
}

// Navigate loads the URL and waits for the page to settle.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := h.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := h.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := h.stabilize(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Debug("Page stabilization incomplete after navigation.", zap.Error(err))
	}
	return nil
}

// stabilize waits for the DOM to be ready plus the configured quiet period.
func (h *Handle) stabilize(ctx context.Context) error {
	stabCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := h.runActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}
	if h.cfg.PostLoadWait > 0 {
		return h.runActions(stabCtx, chromedp.Sleep(h.cfg.PostLoadWait))
	}
	return nil
}

// Click resolves the locator and clicks the first match. Coordinate targets
// dispatch raw CDP mouse events instead.
func (h *Handle) Click(ctx context.Context, target schemas.Locator) error {
	if target.By == schemas.ByCoords {
		x, y, err := target.Coords()
		if err != nil {
			return err
		}
		return h.clickXY(ctx, float64(x), float64(y))
	}

	sel := selector(target)
	h.logger.Debug("Clicking element", zap.String("selector", sel))
	return h.runActions(ctx, chromedp.Tasks{
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	})
}

func (h *Handle) clickXY(ctx context.Context, x, y float64) error {
	h.logger.Debug("Clicking at coordinates", zap.Float64("x", x), zap.Float64("y", y))
	return h.runActions(ctx, chromedp.MouseClickXY(x, y))
}

// Type resolves the locator and types text into the first match.
func (h *Handle) Type(ctx context.Context, target schemas.Locator, text string) error {
	if target.By == schemas.ByCoords {
		x, y, err := target.Coords()
		if err != nil {
			return err
		}
		if err := h.clickXY(ctx, float64(x), float64(y)); err != nil {
			return err
		}
		return h.runActions(ctx, chromedp.KeyEvent(text))
	}

	sel := selector(target)
	h.logger.Debug("Typing into element", zap.String("selector", sel), zap.Int("text_length", len(text)))
	return h.runActions(ctx, chromedp.Tasks{
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	})
}

// Scroll scrolls the located element into view, or the page by (dx, dy)
// when no target is given.
func (h *Handle) Scroll(ctx context.Context, target *schemas.Locator, dx, dy int) error {
	if target != nil && target.By != schemas.ByCoords {
		sel := selector(*target)
		h.logger.Debug("Scrolling element into view", zap.String("selector", sel))
		return h.runActions(ctx, chromedp.ScrollIntoView(sel, chromedp.ByQuery))
	}

	h.logger.Debug("Scrolling page", zap.Int("dx", dx), zap.Int("dy", dy))
	script := fmt.Sprintf(`window.scrollBy({left: %d, top: %d, behavior: 'instant'});`, dx, dy)
	return h.runActions(ctx, chromedp.Evaluate(script, nil))
}

// Hover moves the pointer over the center of the first match.
func (h *Handle) Hover(ctx context.Context, target schemas.Locator) error {
	if target.By == schemas.ByCoords {
		x, y, err := target.Coords()
		if err != nil {
			return err
		}
		return h.dispatchMouseMove(ctx, float64(x), float64(y))
	}

	sel := selector(target)
	h.logger.Debug("Hovering over element", zap.String("selector", sel))

	// Resolve the element center, then dispatch a raw mousemove.
	var pos []float64
	script := fmt.Sprintf(`(function() {
        const el = document.querySelector(%q);
        if (!el) { return null; }
        const r = el.getBoundingClientRect();
        return [r.left + r.width / 2, r.top + r.height / 2];
    })()`, sel)

	if err := h.runActions(ctx, chromedp.Tasks{
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Evaluate(script, &pos),
	}); err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("could not resolve element center for %q", sel)
	}
	return h.dispatchMouseMove(ctx, pos[0], pos[1])
}

func (h *Handle) dispatchMouseMove(ctx context.Context, x, y float64) error {
	return h.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(c)
	}))
}

// keyMap translates friendly key names to CDP key sequences.
var keyMap = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
	"Delete":    kb.Delete,
	"ArrowUp":   kb.ArrowUp,
	"ArrowDown": kb.ArrowDown,
	"PageUp":    kb.PageUp,
	"PageDown":  kb.PageDown,
}

// PressKey dispatches a key press to the focused element.
func (h *Handle) PressKey(ctx context.Context, key string) error {
	seq, ok := keyMap[key]
	if !ok {
		seq = key
	}
	h.logger.Debug("Pressing key", zap.String("key", key))
	return h.runActions(ctx, chromedp.KeyEvent(seq))
}

// Screenshot captures the current viewport as a JPEG.
func (h *Handle) Screenshot(ctx context.Context) ([]byte, error) {
	quality := int64(h.jpegQuality)
	if quality <= 0 {
		quality = 60
	}
	var buf []byte
	err := h.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(quality).
			Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// CurrentURL returns the page's current location.
func (h *Handle) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := h.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Title returns the current document title.
func (h *Handle) Title(ctx context.Context) (string, error) {
	var title string
	if err := h.runActions(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// IsAlive probes the target with a trivial evaluation under a short
// deadline.
func (h *Handle) IsAlive(ctx context.Context) bool {
	h.mu.Lock()
	closed := h.isClosed
	h.mu.Unlock()
	if closed {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out int
	if err := h.runActions(probeCtx, chromedp.Evaluate(`1+1`, &out)); err != nil {
		// Context errors from the caller are inconclusive, not a dead target.
		if ctx.Err() != nil {
			return false
		}
		h.logger.Debug("Liveness probe failed.", zap.Error(err))
		return false
	}
	return out == 2
}

// Close releases the browser target. Safe to call more than once.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.isClosed {
		h.mu.Unlock()
		return nil
	}
	h.isClosed = true
	h.mu.Unlock()

	h.logger.Debug("Closing browser target.")

	if h.cancel != nil {
		h.cancel()
	}
	if h.onClose != nil {
		h.onClose()
	}
	return nil
}

// IsTimeout reports whether an error from a handle operation was a
// deadline, for mapping to the per-action failure taxonomy.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), context.DeadlineExceeded.Error())
}
