package schemas

import "context"

// -- Browser Collaborator Boundary --

// BrowserHandle is the capability a session holds on its live browser
// instance. Implementations wrap a real driver (chromedp); tests substitute
// mocks. All blocking operations take a context.
//
// The handle is read-mostly: Screenshot, CurrentURL, Title and IsAlive may
// be called concurrently with interactions unless the driver cannot service
// concurrent reads, in which case callers serialize behind the session's
// run lock.
type BrowserHandle interface {
	// Navigate loads the URL and waits for the page to stabilize.
	Navigate(ctx context.Context, url string) error
	// Click resolves the locator within a bounded wait and clicks the first match.
	Click(ctx context.Context, target Locator) error
	// Type resolves the locator and types text into the first match.
	Type(ctx context.Context, target Locator, text string) error
	// Scroll scrolls the located element into view, or the page by (dx, dy)
	// when target is nil.
	Scroll(ctx context.Context, target *Locator, dx, dy int) error
	// Hover moves the pointer over the first match of the locator.
	Hover(ctx context.Context, target Locator) error
	// PressKey dispatches a key press (e.g. "Enter") to the focused element.
	PressKey(ctx context.Context, key string) error
	// Screenshot captures the current viewport as an encoded image.
	Screenshot(ctx context.Context) ([]byte, error)
	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// IsAlive reports whether the underlying target still responds.
	IsAlive(ctx context.Context) bool
	// Close releases the browser target. Safe to call more than once.
	Close(ctx context.Context) error
}

// -- Oracle Collaborator Boundary --

// CompletionRequest carries the assembled context for one oracle call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	ForceJSON    bool
}

// Oracle is the reasoning collaborator that proposes the next action as raw
// text. All parsing and validation of the response is internal to the
// planner.
type Oracle interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
