package main

import (
	"log"
	"sync"
	"time"
)

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionInGame
	SessionGrace
)

// Session tracks the single logical presence of one identity: its bound
// connection, whether it is mid-match, and the reconnection grace state
// after a transport loss.
type Session struct {
	Identity string
	Conn     Conn
	State    SessionState
	GameID   string
	LastSeen time.Time

	prior      SessionState // state to restore when a grace reconnect lands
	graceTimer *time.Timer
}

type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	grace    time.Duration
	now      func() time.Time
}

func NewSessionRegistry(grace time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		grace:    grace,
		now:      time.Now,
	}
}

// Register binds a connection to the identity's session, creating one
// when absent. A second connection for an identity that is mid-match is
// rejected with ErrDuplicateActiveSession.
func (r *SessionRegistry) Register(identity string, conn Conn, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.sessions[identity]
	if existing != nil {
		switch {
		case existing.Conn == conn && conn != nil:
			existing.LastSeen = r.now()
			if gameID != "" {
				existing.GameID = gameID
				existing.State = SessionInGame
			}
			log.Printf("[session] refreshed %s on same connection", identity)
			return nil
		case existing.State == SessionIdle:
			// Switching tabs before a match starts.
			existing.Conn = conn
			existing.LastSeen = r.now()
			log.Printf("[session] rebound idle session for %s", identity)
			return nil
		case existing.State == SessionInGame:
			log.Printf("[session] duplicate login blocked for %s", identity)
			return ErrDuplicateActiveSession
		case existing.State == SessionGrace && r.now().Sub(existing.LastSeen) <= r.grace:
			r.stopGraceTimer(existing)
			existing.Conn = conn
			existing.State = existing.prior
			existing.LastSeen = r.now()
			log.Printf("[session] reused disconnected session for %s", identity)
			return nil
		default:
			// Grace window lapsed without the purge timer having fired
			// yet; treat as stale.
			r.stopGraceTimer(existing)
			delete(r.sessions, identity)
		}
	}

	session := &Session{
		Identity: identity,
		Conn:     conn,
		State:    SessionIdle,
		GameID:   gameID,
		LastSeen: r.now(),
	}
	if gameID != "" {
		session.State = SessionInGame
	}
	r.sessions[identity] = session
	log.Printf("[session] registered %s", identity)
	return nil
}

// SetInGame marks the identity as bound to gameID. A missing session is
// created as a placeholder so match creation tolerates ordering races.
func (r *SessionRegistry) SetInGame(identity, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil {
		r.sessions[identity] = &Session{
			Identity: identity,
			State:    SessionInGame,
			GameID:   gameID,
			LastSeen: r.now(),
		}
		return
	}
	r.stopGraceTimer(session)
	session.GameID = gameID
	session.State = SessionInGame
	session.LastSeen = r.now()
}

func (r *SessionRegistry) SetFree(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil {
		return
	}
	session.GameID = ""
	session.LastSeen = r.now()
	if session.State == SessionGrace {
		session.prior = SessionIdle
		return
	}
	session.State = SessionIdle
}

// MarkDisconnected moves the identity into the grace window and arms
// the one-shot purge timer.
func (r *SessionRegistry) MarkDisconnected(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil {
		return
	}
	if session.State != SessionGrace {
		session.prior = session.State
	}
	session.State = SessionGrace
	session.Conn = nil
	session.LastSeen = r.now()

	r.stopGraceTimer(session)
	session.graceTimer = time.AfterFunc(r.grace, func() {
		r.expireSession(identity, session)
	})
	log.Printf("[session] %s disconnected, grace window started", identity)
}

// expireSession re-validates before purging: the session may have
// reconnected, or been replaced entirely, between arming and firing.
func (r *SessionRegistry) expireSession(identity string, armed *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil || session != armed || session.State != SessionGrace {
		return
	}
	if r.now().Sub(session.LastSeen) < r.grace {
		return
	}
	delete(r.sessions, identity)
	log.Printf("[session] purged %s after grace window", identity)
}

// Reconnect restores a session from the grace window, rebinds the
// connection, and returns the stored game id (empty when none).
func (r *SessionRegistry) Reconnect(identity string, conn Conn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil {
		return "", ErrReconnectExpired
	}
	if session.State != SessionGrace {
		return "", ErrUnknownIdentity
	}
	if r.now().Sub(session.LastSeen) > r.grace {
		r.stopGraceTimer(session)
		delete(r.sessions, identity)
		return "", ErrReconnectExpired
	}
	r.stopGraceTimer(session)
	session.Conn = conn
	session.State = session.prior
	session.LastSeen = r.now()
	log.Printf("[session] %s reconnected within grace window", identity)
	return session.GameID, nil
}

// CurrentGame returns the identity's live game id, only while in-game.
func (r *SessionRegistry) CurrentGame(identity string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil || session.State != SessionInGame {
		return ""
	}
	return session.GameID
}

// Peek returns a copy of the identity's session for read-only checks.
func (r *SessionRegistry) Peek(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[identity]
	if session == nil {
		return Session{}, false
	}
	return *session, true
}

func (r *SessionRegistry) stopGraceTimer(session *Session) {
	if session.graceTimer != nil {
		session.graceTimer.Stop()
		session.graceTimer = nil
	}
}
