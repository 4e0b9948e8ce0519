package main

import (
	"log"
	"sync"
	"time"
)

type waitingEntry struct {
	identity   string
	conn       Conn
	enqueuedAt time.Time
	fallback   *time.Timer
}

// Matchmaker holds at most one waiting identity. A second joiner drains
// the slot into a two-human match; a lone joiner falls back to an AI
// match when the fallback timer fires. Admission is serialized per
// identity so duplicate joins cannot create two matches.
type Matchmaker struct {
	mu        sync.Mutex
	waiting   *waitingEntry
	admitting map[string]struct{}

	sessions *SessionRegistry
	games    *GameManager
	fallback time.Duration
}

func NewMatchmaker(sessions *SessionRegistry, games *GameManager, fallback time.Duration) *Matchmaker {
	return &Matchmaker{
		admitting: make(map[string]struct{}),
		sessions:  sessions,
		games:     games,
		fallback:  fallback,
	}
}

func (mm *Matchmaker) Join(identity string, conn Conn) {
	mm.mu.Lock()
	if _, busy := mm.admitting[identity]; busy {
		mm.mu.Unlock()
		log.Printf("[matchmaking] dropped duplicate join for %s", identity)
		return
	}
	mm.admitting[identity] = struct{}{}
	mm.mu.Unlock()
	defer func() {
		mm.mu.Lock()
		delete(mm.admitting, identity)
		mm.mu.Unlock()
	}()

	// A live game means this join is really a resume attempt.
	if gameID := mm.sessions.CurrentGame(identity); gameID != "" {
		if mm.games.ResumeGame(gameID, identity, conn) {
			log.Printf("[matchmaking] %s rejoined existing match %s", identity, gameID)
			return
		}
		mm.sessions.SetFree(identity)
	}

	mm.mu.Lock()
	if mm.waiting == nil {
		entry := &waitingEntry{identity: identity, conn: conn, enqueuedAt: time.Now()}
		entry.fallback = time.AfterFunc(mm.fallback, func() {
			mm.startAIFallback(identity)
		})
		mm.waiting = entry
		mm.mu.Unlock()
		conn.Send("waiting", waitingPayload{Message: "Waiting for an opponent..."})
		log.Printf("[matchmaking] %s waiting for an opponent", identity)
		return
	}
	if mm.waiting.identity == identity {
		// Same identity already holds the slot; refresh the ack only.
		mm.mu.Unlock()
		conn.Send("waiting", waitingPayload{Message: "Waiting for an opponent..."})
		return
	}

	opponent := mm.waiting
	opponent.fallback.Stop()
	mm.waiting = nil
	mm.mu.Unlock()

	log.Printf("[matchmaking] pairing %s with %s", opponent.identity, identity)
	mm.games.StartMatch(opponent.identity, opponent.conn, identity, conn)
}

// startAIFallback fires when the fallback timer lapses. The waiting
// entry may already have been consumed by a human pairing, so it is
// re-checked by identity before acting.
func (mm *Matchmaker) startAIFallback(identity string) {
	mm.mu.Lock()
	if mm.waiting == nil || mm.waiting.identity != identity {
		mm.mu.Unlock()
		return
	}
	entry := mm.waiting
	mm.waiting = nil
	mm.mu.Unlock()

	log.Printf("[matchmaking] no opponent for %s, starting AI match", identity)
	mm.games.StartMatch(entry.identity, entry.conn, "", nil)
}

// HandleDisconnect clears the waiting slot when its owner drops.
func (mm *Matchmaker) HandleDisconnect(identity string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.waiting == nil || mm.waiting.identity != identity {
		return
	}
	mm.waiting.fallback.Stop()
	mm.waiting = nil
	log.Printf("[matchmaking] cleared waiting slot for %s on disconnect", identity)
}

// Waiting reports the identity currently holding the slot, if any.
func (mm *Matchmaker) Waiting() (string, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.waiting == nil {
		return "", false
	}
	return mm.waiting.identity, true
}
