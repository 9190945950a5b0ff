package schemas

import "errors"

// ErrorCode is a string type used for structured error reporting. Using a
// custom type ensures only the predefined constants appear where an
// ErrorCode is expected.
type ErrorCode string

const (
	// -- Request validation --
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// -- Session lifecycle --
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeSessionBusy       ErrorCode = "SESSION_BUSY"
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrCodeSessionDead       ErrorCode = "SESSION_DEAD"

	// -- Planner --
	ErrCodeMalformedAction   ErrorCode = "MALFORMED_ACTION"
	ErrCodeOracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"

	// -- Executor (recoverable, recorded in execution_result.error) --
	ErrCodeTargetNotFound   ErrorCode = "TARGET_NOT_FOUND"
	ErrCodeNavigationError  ErrorCode = "NAVIGATION_ERROR"
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
)

// Sentinel errors surfaced to callers. Wrapped details travel via %w.
var (
	ErrNotFound          = errors.New("session not found")
	ErrSessionBusy       = errors.New("session busy: a loop or step call is already in flight")
	ErrResourceExhausted = errors.New("no browser launch capacity available")
	ErrSessionDead       = errors.New("browser handle is no longer alive")
	ErrOracleUnavailable = errors.New("reasoning oracle unavailable")
	ErrSessionClosed     = errors.New("session is closed")
)

// MalformedActionError reports an oracle response that could not be parsed
// or that violated the Action schema. It is non-fatal to the loop.
type MalformedActionError struct {
	Raw    string
	Reason string
}

func (e *MalformedActionError) Error() string {
	return "malformed oracle action: " + e.Reason
}

// Fatal reports whether an error must abort an in-progress run and move the
// session to the error state, as opposed to being recorded per-step.
func Fatal(err error) bool {
	return errors.Is(err, ErrSessionDead) || errors.Is(err, ErrOracleUnavailable)
}
