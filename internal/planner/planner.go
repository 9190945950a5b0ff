// internal/planner/planner.go
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

const systemPrompt = `You are a web automation planner. Given a goal, the current page state and the
actions already taken, propose exactly ONE next atomic browser action.

Respond with a single JSON object and nothing else:
{
  "action": "click" | "type" | "navigate" | "scroll" | "hover" | "press_key" | "noop",
  "target": {"by": "selector" | "id" | "coords", "value": "<locator>"},
  "value": "<text to type, url to navigate to, or key to press>",
  "confidence": <0.0-1.0>,
  "reason": "<one sentence>"
}

Rules:
- "click", "type" and "hover" require a target. "navigate" and "press_key"
  take their argument in "value" and no target.
- Return "noop" only when the goal is already achieved.
- Do not repeat an action that previously failed.`

// Planner turns (goal, history, page digest) into a validated candidate
// Action by consulting the reasoning oracle.
type Planner struct {
	oracle  schemas.Oracle
	cfg     config.LoopConfig
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Planner. The timeout bounds each oracle call so a hang
// becomes a malformed-action failure instead of blocking the loop.
func New(oracle schemas.Oracle, loopCfg config.LoopConfig, oracleTimeout time.Duration, logger *zap.Logger) *Planner {
	return &Planner{
		oracle:  oracle,
		cfg:     loopCfg,
		timeout: oracleTimeout,
		logger:  logger.Named("planner"),
	}
}

// Propose assembles bounded context, invokes the oracle and validates its
// response against the Action schema. Parse or schema failures return a
// *schemas.MalformedActionError (non-fatal to the loop); oracle transport
// failures return ErrOracleUnavailable.
func (p *Planner) Propose(ctx context.Context, goal string, history []schemas.Action, digest schemas.PageDigest) (schemas.Action, error) {
	userPrompt := p.buildUserPrompt(goal, history, digest)

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.oracle.Complete(callCtx, schemas.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		ForceJSON:    true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			p.logger.Warn("Oracle call timed out.", zap.Duration("timeout", p.timeout))
			return schemas.Action{}, &schemas.MalformedActionError{Reason: "oracle call timed out"}
		}
		if ctx.Err() != nil {
			return schemas.Action{}, ctx.Err()
		}
		return schemas.Action{}, fmt.Errorf("%w: %v", schemas.ErrOracleUnavailable, err)
	}

	action, err := ParseAction(raw)
	if err != nil {
		p.logger.Warn("Oracle returned an unusable action.",
			zap.String("raw_response", truncate(raw, 400)), zap.Error(err))
		return schemas.Action{}, err
	}

	p.logger.Debug("Action proposed.",
		zap.String("kind", string(action.Kind)),
		zap.Float64("confidence", action.Confidence),
		zap.String("reason", action.Reason))
	return action, nil
}

// buildUserPrompt assembles the goal, the page digest and the last K
// actions into the oracle's user message. The lookback discourages the
// oracle from repeating failed moves.
func (p *Planner) buildUserPrompt(goal string, history []schemas.Action, digest schemas.PageDigest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Current page:\n  url: %s\n  title: %s\n  step: %d\n", digest.CurrentURL, digest.Title, digest.StepNumber)

	lookback := p.cfg.HistoryLookback
	if lookback <= 0 {
		lookback = 10
	}
	if len(history) > lookback {
		history = history[len(history)-lookback:]
	}
	if len(history) > 0 {
		b.WriteString("\nPrevious actions (oldest first):\n")
		for _, a := range history {
			data, err := json.Marshal(a)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "  %s\n", data)
		}
	}
	b.WriteString("\nPropose the next action.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
