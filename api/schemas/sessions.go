package schemas

import "time"

// SessionStatus tracks a session through its lifecycle.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionActive       SessionStatus = "active"
	SessionClosing      SessionStatus = "closing"
	SessionClosed       SessionStatus = "closed"
	// SessionError is entered on launch failure or fatal execution failure.
	// The only transition out of it is to SessionClosed.
	SessionError SessionStatus = "error"
)

// SessionOptions carries the artifact flags supplied at session creation.
type SessionOptions struct {
	CaptureVideo  bool `json:"capture_video"`
	KeepArtifacts bool `json:"keep_artifacts"`
}

// SessionInfo is the externally visible view of a session. The id is a
// bearer capability token: any caller holding it may operate on the session.
type SessionInfo struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// CreateSessionRequest is the wire shape for session creation.
type CreateSessionRequest struct {
	CaptureVideo  bool `json:"capture_video"`
	KeepArtifacts bool `json:"keep_artifacts"`
}

// CloseSessionRequest is the wire shape for closing a session.
type CloseSessionRequest struct {
	KeepArtifacts bool `json:"keep_artifacts"`
}
