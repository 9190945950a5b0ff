// internal/server/respond.go
package server

import (
	"errors"
	"net/http"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

// apiError is the uniform error envelope for every non-2xx response.
type apiError struct {
	Error struct {
		Code    schemas.ErrorCode `json:"code"`
		Message string            `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorCode(w http.ResponseWriter, status int, code schemas.ErrorCode, message string) {
	var e apiError
	e.Error.Code = code
	e.Error.Message = message
	writeJSON(w, status, e)
}

// writeError maps domain errors to the HTTP failure taxonomy. Unrecognized
// errors are reported as 500 without leaking internals beyond the message.
func writeError(w http.ResponseWriter, err error) {
	var malformed *schemas.MalformedActionError
	switch {
	case errors.Is(err, schemas.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, schemas.ErrCodeNotFound, err.Error())
	case errors.Is(err, schemas.ErrSessionBusy):
		writeErrorCode(w, http.StatusConflict, schemas.ErrCodeSessionBusy, err.Error())
	case errors.Is(err, schemas.ErrSessionClosed):
		// A closed session is no longer addressable for operations.
		writeErrorCode(w, http.StatusNotFound, schemas.ErrCodeNotFound, err.Error())
	case errors.Is(err, schemas.ErrResourceExhausted):
		writeErrorCode(w, http.StatusServiceUnavailable, schemas.ErrCodeResourceExhausted, err.Error())
	case errors.Is(err, schemas.ErrOracleUnavailable):
		writeErrorCode(w, http.StatusServiceUnavailable, schemas.ErrCodeOracleUnavailable, err.Error())
	case errors.Is(err, schemas.ErrSessionDead):
		writeErrorCode(w, http.StatusInternalServerError, schemas.ErrCodeSessionDead, err.Error())
	case errors.As(err, &malformed):
		writeErrorCode(w, http.StatusInternalServerError, schemas.ErrCodeMalformedAction, err.Error())
	default:
		writeErrorCode(w, http.StatusInternalServerError, schemas.ErrCodeExecutionFailure, err.Error())
	}
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeErrorCode(w, http.StatusBadRequest, schemas.ErrCodeValidation, message)
}

// decodeJSON decodes a request body, treating an empty body as the zero
// value so optional request bodies stay optional.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
