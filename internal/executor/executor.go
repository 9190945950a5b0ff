// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/browser"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

// Executor turns a validated Action into concrete operations against a
// session's browser handle and reports structured outcomes. Recoverable
// failures (locator miss, navigation error, per-action timeout) are
// captured in ExecutionResult.Error; only a dead browser handle is
// surfaced as a fatal error.
type Executor struct {
	cfg    config.ExecutorConfig
	wait   time.Duration // post-action stabilization wait
	logger *zap.Logger
}

// New creates an Executor.
func New(cfg config.ExecutorConfig, postActionWait time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		wait:   postActionWait,
		logger: logger.Named("executor"),
	}
}

// pageChanging reports whether an action kind is expected to mutate page
// state, warranting a stabilization wait before the next observation.
func pageChanging(kind schemas.ActionKind) bool {
	switch kind {
	case schemas.ActionClick, schemas.ActionType, schemas.ActionNavigate, schemas.ActionPressKey:
		return true
	}
	return false
}

// Execute performs one action against the handle. The returned error is
// non-nil only for fatal conditions (schemas.ErrSessionDead); every other
// outcome is expressed in the ExecutionResult.
func (e *Executor) Execute(ctx context.Context, handle schemas.BrowserHandle, action schemas.Action) (*schemas.ExecutionResult, error) {
	actionID := uuid.NewString()
	log := e.logger.With(
		zap.String("action_id", actionID),
		zap.String("kind", string(action.Kind)))
	log.Info("Action start.")

	if !handle.IsAlive(ctx) {
		log.Error("Browser handle is not alive.")
		return nil, schemas.ErrSessionDead
	}

	timeout := e.cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	// Navigation carries its own, longer timeout inside the handle.
	actCtx := ctx
	if action.Kind != schemas.ActionNavigate {
		var cancel context.CancelFunc
		actCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.dispatch(actCtx, handle, action)
	duration := time.Since(start)

	result := &schemas.ExecutionResult{
		ActionID: actionID,
		Duration: duration,
	}

	if err != nil {
		code := e.classify(action, actCtx, err)
		result.Status = "failed"
		result.Error = &schemas.ExecutionError{
			Code:    code,
			Message: err.Error(),
		}
		log.Warn("Action failed.",
			zap.String("error_code", string(code)),
			zap.Duration("duration", duration),
			zap.Error(err))

		// A failed action can still have killed the target (e.g. crashed
		// renderer). Promote to fatal only when the handle is gone.
		if !handle.IsAlive(ctx) {
			return result, schemas.ErrSessionDead
		}
		return result, nil
	}

	result.Status = "success"
	if url, uerr := handle.CurrentURL(ctx); uerr == nil {
		result.URL = url
	}
	log.Info("Action success.", zap.Duration("duration", duration))

	if pageChanging(action.Kind) && e.wait > 0 {
		select {
		case <-time.After(e.wait):
		case <-ctx.Done():
		}
	}
	return result, nil
}

// dispatch routes the action kind to the matching handle operation.
func (e *Executor) dispatch(ctx context.Context, handle schemas.BrowserHandle, action schemas.Action) error {
	switch action.Kind {
	case schemas.ActionNavigate:
		return handle.Navigate(ctx, action.Value)
	case schemas.ActionClick:
		return handle.Click(ctx, *action.Target)
	case schemas.ActionType:
		return handle.Type(ctx, *action.Target, action.Value)
	case schemas.ActionHover:
		return handle.Hover(ctx, *action.Target)
	case schemas.ActionPressKey:
		return handle.PressKey(ctx, action.Value)
	case schemas.ActionScroll:
		return e.dispatchScroll(ctx, handle, action)
	default:
		return fmt.Errorf("unsupported action kind: %q", action.Kind)
	}
}

func (e *Executor) dispatchScroll(ctx context.Context, handle schemas.BrowserHandle, action schemas.Action) error {
	delta := e.cfg.ScrollDelta
	if delta <= 0 {
		delta = 500
	}
	if action.Target != nil && action.Target.By == schemas.ByCoords {
		_, dy, err := action.Target.Coords()
		if err != nil {
			return err
		}
		return handle.Scroll(ctx, nil, 0, dy)
	}
	return handle.Scroll(ctx, action.Target, 0, delta)
}

// classify maps a dispatch failure to the per-step error taxonomy.
// Locator-bearing actions that time out or miss their target report
// TargetNotFound; navigation failures report NavigationError; everything
// else is a generic execution failure.
func (e *Executor) classify(action schemas.Action, actCtx context.Context, err error) schemas.ErrorCode {
	if action.Kind == schemas.ActionNavigate {
		return schemas.ErrCodeNavigationError
	}
	if action.Target != nil && (actCtx.Err() == context.DeadlineExceeded || browser.IsTimeout(err)) {
		return schemas.ErrCodeTargetNotFound
	}
	return schemas.ErrCodeExecutionFailure
}
