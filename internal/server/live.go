// internal/server/live.go
package server

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

const (
	liveWriteTimeout = 10 * time.Second
	liveReadLimit    = 1 << 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The session id in the path is the capability; origin does not gate it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLive upgrades the connection and streams live frames until the
// client sends "stop", disconnects, or the session's feed terminates.
// Frames are sampled independently of action execution, so the view stays
// live while a loop is running.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.broadcaster.Subscribe(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.broadcaster.Unsubscribe(sess, sub)
		s.logger.Warn("Live view upgrade failed.",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	log := s.logger.With(zap.String("session_id", sess.ID))
	log.Info("Live view connected.")

	defer func() {
		s.broadcaster.Unsubscribe(sess, sub)
		conn.Close()
		log.Info("Live view disconnected.")
	}()

	// Reader: consumes client control messages. "stop" ends the
	// subscription; "ping" asks the writer for a "pong". All writes happen
	// on the writer loop below; gorilla forbids concurrent writers.
	stop := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(stop)
		conn.SetReadLimit(liveReadLimit)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch string(msg) {
			case "stop":
				return
			case "ping":
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-pings:
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		case frame, ok := <-sub.C:
			if !ok {
				// Feed terminated (session closed or handle died).
				conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(liveWriteTimeout))
				return
			}
			msg := schemas.FrameMessage{
				Type: "frame",
				Data: base64.StdEncoding.EncodeToString(frame.Data),
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("Live view write failed.", zap.Error(err))
				return
			}
		case <-stop:
			return
		}
	}
}
