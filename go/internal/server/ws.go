package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/protocol"
	"github.com/mcdev12/gavel/go/internal/registry"
)

const (
	wsReadTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 1024
)

// handleWS upgrades an HTTP request to a WebSocket connection speaking the
// same line protocol as the TCP transport: one text frame per line. The
// identity comes from the `name` query parameter instead of a first line.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	connID := uuid.New().String()[:8]
	identity := r.URL.Query().Get("name")

	if !protocol.ValidateName(identity) {
		wsWriteLine(conn, s.cfg.WriteTimeout, protocol.ErrorLine(msgInvalidName))
		return
	}

	sess, err := s.attach(r.Context(), connID, identity, conn)
	if err != nil {
		if errors.Is(err, registry.ErrIdentityInUse) {
			wsWriteLine(conn, s.cfg.WriteTimeout, protocol.ErrorLine(msgNameInUse))
		} else {
			log.Error().Err(err).Str("conn_id", connID).Msg("handshake failed")
		}
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.wsWritePump(sess, conn)
	}()
	defer func() {
		sess.teardown()
		<-pumpDone
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", connID).Msg("unexpected WebSocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if !sess.handleLine(strings.TrimSpace(string(message))) {
			return
		}
	}
}

// wsWritePump drains the session sink to the socket and keeps the connection
// alive with pings, mirroring the TCP write pump.
func (s *Server) wsWritePump(sess *session, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-sess.ctx.Done():
			sess.drain(func(line string) error {
				return wsWriteLine(conn, s.cfg.WriteTimeout, line)
			})
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case line := <-sess.sink:
			if err := wsWriteLine(conn, s.cfg.WriteTimeout, line); err != nil {
				log.Warn().
					Err(err).
					Str("identity", sess.identity).
					Msg("WebSocket write failed, closing connection")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wsWriteLine(conn *websocket.Conn, timeout time.Duration, line string) error {
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
