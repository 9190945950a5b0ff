// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/loop"
	"github.com/xkilldash9x/goalpilot/internal/session"
	"github.com/xkilldash9x/goalpilot/internal/stream"
)

// Server exposes the session and control-loop operations over HTTP, plus
// the live frame stream over WebSocket.
type Server struct {
	cfg         *config.Config
	sessions    *session.Manager
	loop        *loop.Loop
	broadcaster *stream.Broadcaster
	logger      *zap.Logger

	httpSrv *http.Server
}

// New wires the API surface.
func New(cfg *config.Config, sessions *session.Manager, l *loop.Loop, broadcaster *stream.Broadcaster, logger *zap.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		sessions:    sessions,
		loop:        l,
		broadcaster: broadcaster,
		logger:      logger.Named("server"),
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /sessions/{id}/step", s.handleStep)
	mux.HandleFunc("POST /sessions/{id}/plan_execute_loop", s.handleLoop)
	mux.HandleFunc("GET /sessions/{id}/live", s.handleLive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe runs the HTTP server until it is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API server listening.", zap.String("address", s.cfg.Server.Address))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server and stops all frame samplers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Shutdown()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
