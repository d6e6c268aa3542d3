package server

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aeolun/gameserverlist/pkg/protocol"
	"github.com/aeolun/gameserverlist/pkg/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"json"},
	CheckOrigin: func(r *http.Request) bool {
		// Game server processes, not browsers; the Origin header
		// means nothing here
		return true
	},
}

// HandleWebSocket upgrades the HTTP connection and runs it as a game
// server session. The remote address is captured before the upgrade
// and is the only source for the entry's IP.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip, err := resolveRemoteAddr(r)
	if err != nil {
		log.Printf("Rejecting connection: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sess := s.sessions.CreateSession(ip, ws)
	debugLog.Printf("WebSocket connection from %s (session %d)", r.RemoteAddr, sess.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.messageLoop(sess)
	}()
}

// messageLoop drives the session's state machine: frames arrive in
// order, each either advances the session or closes it. The deferred
// teardown is the single place the registry entry is removed.
func (s *Server) messageLoop(sess *Session) {
	defer s.closeSession(sess)

	conn := sess.conn
	conn.SetReadLimit(int64(s.config.MaxFrameBytes))
	idleTimeout := time.Duration(s.config.IdleTimeoutSeconds) * time.Second

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			debugLog.Printf("Session %d: read ended: %v", sess.ID, err)
			return
		}
		sess.touch()

		if msgType != websocket.TextMessage {
			s.violation(sess, "non_text_frame")
			return
		}

		switch sess.State() {
		case StateUnregistered:
			if err := s.handleConnect(sess, data); err != nil {
				return
			}
		case StateRegistered:
			if err := s.handleStatus(sess, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handleConnect processes the first frame: validate, resolve trust,
// insert the entry, transition to Registered.
func (s *Server) handleConnect(sess *Session, data []byte) error {
	msg, err := protocol.ParseConnect(data)
	if err != nil {
		s.violation(sess, "malformed_connect")
		debugLog.Printf("Session %d: %v", sess.ID, err)
		return err
	}

	advertised, official := s.trust.Resolve(sess.RemoteIP)

	id := uuid.New()
	err = s.registry.Create(id, registry.Entry{
		Name:     msg.Name,
		IP:       advertised,
		TLS:      msg.TLS,
		Port:     msg.Port,
		Official: official,
	})
	if err != nil {
		// A duplicate id means a broken invariant somewhere, not a
		// client mistake. Fatal for this connection only.
		log.Printf("Session %d: entry create failed: %v", sess.ID, err)
		return err
	}

	sess.entryID = id
	sess.setState(StateRegistered)
	if s.metrics != nil {
		s.metrics.RecordRegistered()
	}
	log.Printf("Session %d: registered %q at %s:%d (tls=%v official=%v)",
		sess.ID, msg.Name, advertised, msg.Port, msg.TLS, official)
	return nil
}

// handleStatus processes a frame after registration: only the player
// count may change.
func (s *Server) handleStatus(sess *Session, data []byte) error {
	msg, err := protocol.ParseStatus(data)
	if err != nil {
		s.violation(sess, "malformed_update")
		debugLog.Printf("Session %d: %v", sess.ID, err)
		return err
	}

	prev, err := s.registry.UpdatePlayers(sess.entryID, msg.Players)
	if err != nil {
		// Entry already removed; the connection is on its way out
		debugLog.Printf("Session %d: update raced with removal: %v", sess.ID, err)
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordPlayerUpdate(prev, msg.Players)
	}
	debugLog.Printf("Session %d: players=%d", sess.ID, msg.Players)
	return nil
}

func (s *Server) violation(sess *Session, reason string) {
	log.Printf("Session %d: protocol violation (%s), closing", sess.ID, reason)
	if s.metrics != nil {
		s.metrics.RecordViolation(reason)
	}
}

// closeSession tears the session down exactly once: close the socket,
// forget the session, remove the entry if one was created. Runs only
// from the session's own message loop, so a second close signal or a
// late update can never duplicate or resurrect the entry.
func (s *Server) closeSession(sess *Session) {
	sess.teardown.Do(func() {
		wasRegistered := sess.State() == StateRegistered
		sess.setState(StateClosed)
		sess.conn.Close()
		s.sessions.RemoveSession(sess.ID)

		if !wasRegistered {
			debugLog.Printf("Session %d: closed before registering", sess.ID)
			return
		}
		entry, err := s.registry.Remove(sess.entryID)
		if err != nil {
			log.Printf("Session %d: entry %s already removed: %v", sess.ID, sess.entryID, err)
			return
		}
		if s.metrics != nil {
			s.metrics.RecordDisconnected(entry.Players)
		}
		log.Printf("Session %d: removed %q from registry", sess.ID, entry.Name)
	})
}
