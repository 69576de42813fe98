// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/device"
	"github.com/ddoffy/mobile-trackpad/internal/logging"
	"github.com/ddoffy/mobile-trackpad/internal/metrics"
	"github.com/ddoffy/mobile-trackpad/internal/protocol"
	"github.com/ddoffy/mobile-trackpad/internal/session"
	"github.com/ddoffy/mobile-trackpad/internal/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// clients load the page from this host over the LAN
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TrackpadHandler upgrades the connection and runs one trackpad session:
// a reader that dispatches intents in arrival order and a writer that
// drains the session's outbound queue.
// @Summary Trackpad session
// @Description Upgrade to WebSocket and exchange trackpad intents and notifications.
// @ID trackpadWS
// @Tags trackpad
// @Success 101
// @Router /ws [get]
func TrackpadHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response
			logging.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		s := mgr.Register(r.RemoteAddr)
		util.WriteAuditLog("Trackpad session %s connected from %s", s.ID(), r.RemoteAddr)

		if greeting, err := protocol.Encode(protocol.NewConnected(s.ID())); err == nil {
			_ = mgr.SendTo(s.ID(), greeting)
		}

		go writePump(conn, s)
		readPump(conn, mgr, s)

		mgr.Unregister(s.ID())
		util.WriteAuditLog("Trackpad session %s disconnected (%v)", s.ID(), s.Err())
	}
}

// frameWriter is the part of *websocket.Conn the writer needs.
type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writePump drains the session queue until the session ends. Anything
// still queued at that point is dropped.
func writePump(conn frameWriter, s *session.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-s.Done():
			writeClose(conn, s)
			return
		case msg := <-s.Outbound():
			select {
			case <-s.Done():
				writeClose(conn, s)
				return
			default:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debug("websocket write failed", zap.String("session", s.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn frameWriter, s *session.Session) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, closeFrame(s.Err()))
}

func closeFrame(reason error) []byte {
	switch {
	case errors.Is(reason, session.ErrSlowConsumer):
		return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow")
	case errors.Is(reason, session.ErrShutdown):
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}

// readPump returns when the peer goes away, the session is closed from
// our side, or the device fails.
func readPump(conn *websocket.Conn, mgr *session.Manager, s *session.Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// a closed session stops the reader by failing its next read
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logging.Debug("websocket read ended", zap.String("session", s.ID()), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		in, err := protocol.Decode(data)
		if err != nil {
			metrics.RecordProtocolError()
			logging.Warn("dropping malformed message", zap.String("session", s.ID()), zap.Error(err))
			if notice, encErr := protocol.Encode(protocol.NewErrorNotice(protocol.CodeProtocolError, err.Error())); encErr == nil {
				_ = mgr.SendTo(s.ID(), notice)
			}
			continue
		}

		err = mgr.Dispatch(s.ID(), in)
		var fatal *device.FatalError
		switch {
		case err == nil:
		case errors.As(err, &fatal):
			// the device hook terminates the process
			return
		case errors.Is(err, session.ErrUnknownSession):
			return
		case errors.Is(err, session.ErrRateLimited):
		default:
			logging.Debug("intent rejected", zap.String("session", s.ID()), zap.String("type", string(in.Kind())), zap.Error(err))
		}
	}
}
