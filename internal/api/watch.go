package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"dubflow/internal/logging"
)

const (
	watchWriteWait = 10 * time.Second
	// watchMaxLifetime closes streams that never observe a terminal state.
	watchMaxLifetime = time.Hour
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleWatch streams WorkflowView snapshots over a websocket whenever the
// status changes, closing after a terminal state.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Resolve before upgrading so unknown workflows get a plain 404.
	status, err := s.workflows.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), watchMaxLifetime)
	defer cancel()
	go func() {
		// Drain client frames so close messages are noticed.
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldWorkflowID, id))
	logger.Debug("watch stream opened")

	throttle := rate.NewLimiter(rate.Every(s.watchInterval), 1)
	var last []byte
	for {
		view := FromWorkflowStatus(status)
		encoded, err := json.Marshal(view)
		if err != nil {
			logger.Warn("encode watch snapshot failed", logging.Error(err))
			return
		}
		if !bytes.Equal(encoded, last) {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				logger.Debug("watch client gone", logging.Error(err))
				return
			}
			last = encoded
		}
		if view.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, view.Status)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
			logger.Debug("watch stream closed", logging.String("status", view.Status))
			return
		}

		if err := throttle.Wait(ctx); err != nil {
			return
		}
		status, err = s.workflows.GetStatus(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("watch status lookup failed", logging.Error(err))
				msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
			}
			return
		}
	}
}
