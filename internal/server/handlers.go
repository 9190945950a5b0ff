// internal/server/handlers.go
package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.sessions.Create(r.Context(), schemas.SessionOptions{
		CaptureVideo:  req.CaptureVideo,
		KeepArtifacts: req.KeepArtifacts,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req schemas.CloseSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, "invalid request body: "+err.Error())
		return
	}

	if err := s.sessions.Close(r.Context(), r.PathValue("id"), req.KeepArtifacts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req schemas.StepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		writeValidationError(w, "goal must not be empty")
		return
	}

	step, err := s.loop.Step(r.Context(), sess, req)
	if step != nil {
		// Partial failure still yields the structured step; the session
		// status reflects any fatal outcome.
		if err != nil {
			s.logger.Warn("Single step ended fatally.",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, schemas.StepResponse{
			Action:          step.Action,
			ExecutionResult: step.ExecutionResult,
		})
		return
	}
	writeError(w, err)
}

func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req schemas.LoopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationError(w, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		writeValidationError(w, "goal must not be empty")
		return
	}
	if req.MaxSteps < 0 {
		writeValidationError(w, "max_steps must not be negative")
		return
	}

	run, err := s.loop.Run(r.Context(), sess, req)
	if run != nil {
		// Fatal aborts still return the partial run; its reason and the
		// session status carry the failure.
		if err != nil {
			s.logger.Warn("Loop run ended fatally.",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, run)
		return
	}
	writeError(w, err)
}
