// internal/loop/loop.go
package loop

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

// ActionPlanner proposes the next action for a goal given bounded context.
type ActionPlanner interface {
	Propose(ctx context.Context, goal string, history []schemas.Action, digest schemas.PageDigest) (schemas.Action, error)
}

// ActionExecutor carries out a validated action against a browser handle.
type ActionExecutor interface {
	Execute(ctx context.Context, handle schemas.BrowserHandle, action schemas.Action) (*schemas.ExecutionResult, error)
}

// Loop composes the planner, executor and session manager into the
// stepwise plan→act control algorithm. One Loop instance serves all
// sessions; per-session mutual exclusion lives in the session's run lock.
type Loop struct {
	cfg      config.LoopConfig
	planner  ActionPlanner
	executor ActionExecutor
	logger   *zap.Logger
}

// New creates the control loop.
func New(cfg config.LoopConfig, planner ActionPlanner, executor ActionExecutor, logger *zap.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		planner:  planner,
		executor: executor,
		logger:   logger.Named("plan_execute_loop"),
	}
}

// Run executes the multi-step plan→act loop against a session until a stop
// condition fires. It acquires the session's exclusive execution lock for
// the whole run; a concurrent call fails immediately with ErrSessionBusy.
//
// The returned LoopRun is always populated with the steps taken so far,
// even when the run aborted fatally; in that case the error carries the
// fatal kind and the session has been moved to the error state.
func (l *Loop) Run(ctx context.Context, sess *session.Session, req schemas.LoopRequest) (*schemas.LoopRun, error) {
	runCtx, release, err := sess.BeginRun(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = l.cfg.MaxSteps
	}

	stopLow := l.cfg.StopOnLowConfidenceByDef
	if req.StopOnLowConfidence != nil {
		stopLow = *req.StopOnLowConfidence
	}

	log := l.logger.With(zap.String("session_id", sess.ID))
	log.Info("Plan loop started.",
		zap.String("goal", req.Goal),
		zap.Int("max_steps", maxSteps),
		zap.Bool("stop_on_low_confidence", stopLow),
		zap.Bool("force", req.Force))

	run := &schemas.LoopRun{
		SessionID: sess.ID,
		Goal:      req.Goal,
		Steps:     make([]schemas.StepResult, 0, maxSteps),
	}

	st := &runState{
		sess:     sess,
		handle:   sess.Handle(),
		goal:     req.Goal,
		force:    req.Force,
		stopLow:  stopLow,
		run:      run,
		executed: nil,
	}

	var fatal error
	for step := 1; step <= maxSteps; step++ {
		// Cooperative cancellation: checked only between iterations; an
		// in-flight action always finishes.
		if runCtx.Err() != nil {
			run.Reason = schemas.ReasonCancelled
			break
		}

		done, err := l.iterate(runCtx, st, step)
		if err != nil {
			fatal = err
			break
		}
		if done {
			break
		}
	}

	if run.Reason == "" {
		run.Reason = schemas.ReasonStepBudgetExhausted
	}
	run.Completed = run.Reason == schemas.ReasonGoalReached

	log.Info("Plan loop finished.",
		zap.String("reason", string(run.Reason)),
		zap.Bool("completed", run.Completed),
		zap.Int("steps", len(run.Steps)))
	return run, fatal
}

// Step performs exactly one pass of the control loop and returns that
// StepResult alone, enabling interactive client-driven stepping. It shares
// the run lock and stop-condition evaluation with Run.
func (l *Loop) Step(ctx context.Context, sess *session.Session, req schemas.StepRequest) (*schemas.StepResult, error) {
	runCtx, release, err := sess.BeginRun(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	st := &runState{
		sess:     sess,
		handle:   sess.Handle(),
		goal:     req.Goal,
		force:    req.Force,
		stopLow:  l.cfg.StopOnLowConfidenceByDef,
		run:      &schemas.LoopRun{SessionID: sess.ID, Goal: req.Goal},
		executed: req.LastActions,
	}

	if _, err := l.iterate(runCtx, st, 1); err != nil {
		if len(st.run.Steps) > 0 {
			return &st.run.Steps[0], err
		}
		return nil, err
	}
	if len(st.run.Steps) == 0 {
		// Only possible when the consecutive-malformed limit is 1 and the
		// first proposal failed; iterate records a step for every other path.
		return nil, schemas.ErrOracleUnavailable
	}
	return &st.run.Steps[0], nil
}

// runState carries the per-run bookkeeping across iterations.
type runState struct {
	sess    *session.Session
	handle  schemas.BrowserHandle
	goal    string
	force   bool
	stopLow bool
	run     *schemas.LoopRun

	// executed holds successfully executed actions, feeding both the
	// planner's lookback context and duplicate suppression.
	executed    []schemas.Action
	consecutive int // consecutive malformed proposals
}

func (st *runState) append(step int, action schemas.Action, executed bool, result *schemas.ExecutionResult) {
	st.run.Steps = append(st.run.Steps, schemas.StepResult{
		Step:            step,
		Action:          action,
		Executed:        executed,
		ExecutionResult: result,
		Timestamp:       time.Now().UTC(),
	})
}

// iterate performs one planning+execution pass. It returns done=true when a
// stop condition fired, and a non-nil error only for fatal conditions
// (which also move the session to the error state).
func (l *Loop) iterate(ctx context.Context, st *runState, step int) (bool, error) {
	log := l.logger.With(zap.String("session_id", st.sess.ID), zap.Int("step", step))

	// 1. Observe: snapshot the page state read-only. Failures here are
	// tolerable; the oracle simply gets a thinner digest.
	digest := l.observe(ctx, st.handle, step)

	// 2. Plan.
	action, err := l.planner.Propose(ctx, st.goal, st.executed, digest)
	if err != nil {
		var malformed *schemas.MalformedActionError
		switch {
		case errors.As(err, &malformed):
			st.consecutive++
			st.append(step, schemas.Action{}, false, &schemas.ExecutionResult{
				Status: "failed",
				Error: &schemas.ExecutionError{
					Code:    schemas.ErrCodeMalformedAction,
					Message: malformed.Reason,
				},
			})
			if st.consecutive >= l.cfg.ConsecutiveMalformedMax {
				log.Error("Consecutive malformed limit exceeded; oracle considered unavailable.",
					zap.Int("limit", l.cfg.ConsecutiveMalformedMax))
				st.run.Reason = schemas.ReasonExecutionError
				st.sess.MarkError()
				return true, schemas.ErrOracleUnavailable
			}
			log.Warn("Malformed oracle action recorded as unexecuted step.",
				zap.Int("consecutive", st.consecutive))
			return false, nil
		case ctx.Err() != nil:
			st.run.Reason = schemas.ReasonCancelled
			return true, nil
		default:
			log.Error("Oracle unavailable mid-run.", zap.Error(err))
			st.run.Reason = schemas.ReasonExecutionError
			st.sess.MarkError()
			return true, err
		}
	}
	st.consecutive = 0

	// 3. Goal reached: noop terminates without executing.
	if action.Kind == schemas.ActionNoop {
		log.Info("Oracle returned noop; goal reached.", zap.String("reason", action.Reason))
		st.append(step, action, false, nil)
		st.run.Reason = schemas.ReasonGoalReached
		return true, nil
	}

	// 4. Confidence gate.
	if !st.force && st.stopLow && action.Confidence < l.cfg.ConfidenceThreshold {
		log.Warn("Low confidence action; stopping without executing.",
			zap.Float64("confidence", action.Confidence),
			zap.Float64("threshold", l.cfg.ConfidenceThreshold))
		st.append(step, action, false, nil)
		st.run.Reason = schemas.ReasonLowConfidence
		return true, nil
	}

	// 5. Duplicate suppression: a proposal identical to a recently executed
	// action is skipped rather than replayed.
	if l.isDuplicate(st.executed, action) {
		log.Warn("Duplicate action proposed; skipping execution.")
		st.append(step, action, false, &schemas.ExecutionResult{
			Status:  "skipped",
			Skipped: "duplicate",
		})
		return false, nil
	}

	// 6. Execute.
	result, err := l.executor.Execute(ctx, st.handle, action)
	if err != nil {
		st.append(step, action, false, result)
		log.Error("Fatal execution failure; aborting run.", zap.Error(err))
		st.run.Reason = schemas.ReasonExecutionError
		st.sess.MarkError()
		return true, err
	}

	executed := result.Error == nil
	st.append(step, action, executed, result)
	if executed {
		st.executed = append(st.executed, action)
	}
	return false, nil
}

// observe builds the read-only page digest for the planner.
func (l *Loop) observe(ctx context.Context, handle schemas.BrowserHandle, step int) schemas.PageDigest {
	digest := schemas.PageDigest{StepNumber: step}
	if handle == nil {
		return digest
	}
	if url, err := handle.CurrentURL(ctx); err == nil {
		digest.CurrentURL = url
	}
	if title, err := handle.Title(ctx); err == nil {
		digest.Title = title
	}
	return digest
}

// isDuplicate compares the proposal against the most recently executed
// actions.
func (l *Loop) isDuplicate(executed []schemas.Action, action schemas.Action) bool {
	lookback := l.cfg.DuplicateLookback
	if lookback <= 0 {
		return false
	}
	if len(executed) > lookback {
		executed = executed[len(executed)-lookback:]
	}
	for _, past := range executed {
		if past.Equal(action) {
			return true
		}
	}
	return false
}
