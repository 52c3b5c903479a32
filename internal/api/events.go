package api

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// handleEvents handles GET /api/events. Each tracker event is sent as one
// JSON text message until the peer goes away or the server shuts down.
func (s *Server) handleEvents(c echo.Context) error {
	// Subscribe before the upgrade completes so no event after the
	// handshake is missed
	events, cancel := s.backend.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	remoteAddr := c.RealIP()
	s.logger.Info("Event subscriber connected", zap.String("remote_addr", remoteAddr))
	defer func() {
		_ = conn.Close()
		s.logger.Info("Event subscriber disconnected", zap.String("remote_addr", remoteAddr))
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound messages are discarded; reading is needed to process control
	// frames and to notice the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				closeConn(conn, websocket.CloseNormalClosure, "tracker closed")
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("Failed to send event", zap.String("remote_addr", remoteAddr), zap.Error(err))
				return nil
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}

		case <-closed:
			return nil

		case <-s.done:
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return nil
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
