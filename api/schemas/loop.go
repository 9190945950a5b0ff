package schemas

import "time"

// TerminationReason explains why a LoopRun stopped. Exactly one reason is
// ever set on a finished run.
type TerminationReason string

const (
	ReasonGoalReached         TerminationReason = "goal_reached"
	ReasonLowConfidence       TerminationReason = "low_confidence"
	ReasonStepBudgetExhausted TerminationReason = "step_budget_exhausted"
	ReasonExecutionError      TerminationReason = "execution_error"
	ReasonCancelled           TerminationReason = "cancelled"
)

// ExecutionError is the structured failure detail attached to a step whose
// action could not be carried out.
type ExecutionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ExecutionResult is the structured outcome of handing one Action to the
// executor. Either Status is "success" with an optional payload, or Error
// is populated.
type ExecutionResult struct {
	Status   string          `json:"status"`
	ActionID string          `json:"action_id,omitempty"`
	Duration time.Duration   `json:"duration,omitempty"`
	URL      string          `json:"url,omitempty"`
	Skipped  string          `json:"skipped,omitempty"`
	Error    *ExecutionError `json:"error,omitempty"`
}

// StepResult records one pass of the plan/execute loop. Step indexes are
// 1-based and strictly increasing within a run.
type StepResult struct {
	Step            int              `json:"step"`
	Action          Action           `json:"action"`
	Executed        bool             `json:"executed"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// LoopRun is the transient record of one control-loop invocation. Completed
// is true iff the run terminated with ReasonGoalReached.
type LoopRun struct {
	SessionID string            `json:"session_id"`
	Goal      string            `json:"goal"`
	Completed bool              `json:"completed"`
	Steps     []StepResult      `json:"steps"`
	Reason    TerminationReason `json:"reason,omitempty"`
}

// LoopRequest parameterizes a multi-step loop invocation.
type LoopRequest struct {
	Goal string `json:"goal"`
	// MaxSteps caps the number of iterations; zero means the configured default.
	MaxSteps int `json:"max_steps,omitempty"`
	// StopOnLowConfidence toggles the confidence gate; nil means the
	// configured default.
	StopOnLowConfidence *bool `json:"stop_on_low_confidence,omitempty"`
	// Force executes proposed actions regardless of confidence.
	Force bool `json:"force,omitempty"`
}

// StepRequest parameterizes a single-step invocation for interactive,
// client-driven stepping.
type StepRequest struct {
	Goal        string   `json:"goal"`
	LastActions []Action `json:"last_actions,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// StepResponse is the wire shape returned by the single-step endpoint.
type StepResponse struct {
	Action          Action           `json:"action"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
}

// PageDigest is the bounded, read-only page context handed to the planner.
type PageDigest struct {
	CurrentURL string `json:"current_url"`
	Title      string `json:"title"`
	StepNumber int    `json:"step_number"`
}

// FrameMessage is one live-view frame as sent over the stream channel.
type FrameMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}
