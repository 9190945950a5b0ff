// internal/planner/planner_test.go
package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/mocks"
)

func newTestPlanner(oracle schemas.Oracle) *Planner {
	cfg := config.LoopConfig{HistoryLookback: 3}
	return New(oracle, cfg, time.Second, zap.NewNop())
}

func TestProposeReturnsValidatedAction(t *testing.T) {
	oracle := new(mocks.MockOracle)
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(req schemas.CompletionRequest) bool {
		return req.ForceJSON && req.SystemPrompt != ""
	})).Return(`{"action": "click", "target": {"by": "selector", "value": ".cta"}, "confidence": 0.85, "reason": "call to action"}`, nil)

	p := newTestPlanner(oracle)
	action, err := p.Propose(context.Background(), "buy the thing", nil, schemas.PageDigest{CurrentURL: "https://shop.test", StepNumber: 1})

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Kind)
	oracle.AssertExpectations(t)
}

func TestProposePromptCarriesGoalAndLookback(t *testing.T) {
	var captured schemas.CompletionRequest
	oracle := new(mocks.MockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(schemas.CompletionRequest)
		}).
		Return(`{"action": "noop", "confidence": 1.0, "reason": "done"}`, nil)

	history := []schemas.Action{
		{Kind: schemas.ActionNavigate, Value: "https://a.test", Confidence: 1},
		{Kind: schemas.ActionClick, Target: &schemas.Locator{By: schemas.BySelector, Value: "#one"}, Confidence: 1},
		{Kind: schemas.ActionClick, Target: &schemas.Locator{By: schemas.BySelector, Value: "#two"}, Confidence: 1},
		{Kind: schemas.ActionClick, Target: &schemas.Locator{By: schemas.BySelector, Value: "#three"}, Confidence: 1},
	}

	p := newTestPlanner(oracle)
	_, err := p.Propose(context.Background(), "find the pricing page", history, schemas.PageDigest{Title: "Acme", StepNumber: 5})
	require.NoError(t, err)

	assert.Contains(t, captured.UserPrompt, "find the pricing page")
	assert.Contains(t, captured.UserPrompt, "Acme")
	// Lookback of 3 drops the oldest entry.
	assert.NotContains(t, captured.UserPrompt, "https://a.test")
	assert.Contains(t, captured.UserPrompt, "#three")
}

func TestProposeMalformedResponse(t *testing.T) {
	oracle := new(mocks.MockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything).Return("I refuse to answer in JSON.", nil)

	p := newTestPlanner(oracle)
	_, err := p.Propose(context.Background(), "goal", nil, schemas.PageDigest{})

	var malformed *schemas.MalformedActionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &malformed))
}

func TestProposeOracleUnavailable(t *testing.T) {
	oracle := new(mocks.MockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	p := newTestPlanner(oracle)
	_, err := p.Propose(context.Background(), "goal", nil, schemas.PageDigest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrOracleUnavailable)
}

func TestProposeCancelledContext(t *testing.T) {
	oracle := new(mocks.MockOracle)
	oracle.On("Complete", mock.Anything, mock.Anything).Return("", context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPlanner(oracle)
	_, err := p.Propose(ctx, "goal", nil, schemas.PageDigest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, schemas.ErrOracleUnavailable)
}
