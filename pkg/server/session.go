package server

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int32

const (
	// StateUnregistered means no valid connect message has arrived
	// yet; the connection owns no registry entry.
	StateUnregistered SessionState = iota
	// StateRegistered means the connection owns exactly one entry.
	StateRegistered
	// StateClosed is terminal; the entry, if any, has been removed.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session represents one game server connection. The session never
// holds a copy of its registry entry, only the id used to address it.
type Session struct {
	ID       uint64
	RemoteIP netip.Addr

	conn     *websocket.Conn
	entryID  uuid.UUID // written before the Registered transition, read at teardown
	state    atomic.Int32
	lastSeen atomic.Int64 // unix milliseconds, updated per frame
	teardown sync.Once
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// touch records frame activity for the idle sweeper.
func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixMilli())
}

// SessionManager tracks all live connections so the sweeper and
// shutdown can reach them.
type SessionManager struct {
	sessions map[uint64]*Session
	nextID   atomic.Uint64
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
	}
}

// CreateSession registers a new connection in the Unregistered state.
func (sm *SessionManager) CreateSession(ip netip.Addr, conn *websocket.Conn) *Session {
	sess := &Session{
		ID:       sm.nextID.Add(1),
		RemoteIP: ip,
		conn:     conn,
	}
	sess.touch()

	sm.mu.Lock()
	sm.sessions[sess.ID] = sess
	sm.mu.Unlock()

	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// GetAllSessions returns all active sessions
func (sm *SessionManager) GetAllSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// RemoveSession forgets a session. The caller is responsible for the
// connection and the registry entry.
func (sm *SessionManager) RemoveSession(sessionID uint64) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

// Count returns the number of live connections (registered or not).
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// CloseAll closes every connection. Each message loop observes the
// close and runs its own teardown, so entries are removed through the
// normal path.
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	sm.mu.RUnlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}
}
