package main

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	winnerDraw    = "Draw"
	winnerForfeit = "Opponent forfeited"
)

type MoveRecord struct {
	Mover     string    `json:"mover"`
	Column    int       `json:"column"`
	Row       int       `json:"row"`
	AppliedAt time.Time `json:"appliedAt"`
}

type Game struct {
	ID        string
	Board     Board
	Players   [2]*Player
	Turn      int
	Moves     []MoveRecord
	VsAI      bool
	StartedAt time.Time

	forfeitTimer *time.Timer
	aiTimer      *time.Timer
}

func (g *Game) playerByIdentity(identity string) *Player {
	for _, p := range g.Players {
		if p.Identity == identity {
			return p
		}
	}
	return nil
}

func (g *Game) opponentOf(identity string) *Player {
	for _, p := range g.Players {
		if p.Identity != identity {
			return p
		}
	}
	return nil
}

// GameManager owns every live match: turn arbitration, win/draw
// detection, disconnect and forfeit handling, and rematch negotiation.
// All mutation happens under one lock; store and event-bus calls run on
// goroutines after the in-memory transition completes.
type GameManager struct {
	mu            sync.Mutex
	games         map[string]*Game
	rematchOffers map[string]string // responder -> requester

	sessions *SessionRegistry
	store    MatchStore
	bus      EventBus
	config   Config
}

func NewGameManager(sessions *SessionRegistry, store MatchStore, bus EventBus, config Config) *GameManager {
	return &GameManager{
		games:         make(map[string]*Game),
		rematchOffers: make(map[string]string),
		sessions:      sessions,
		store:         store,
		bus:           bus,
		config:        config,
	}
}

// StartMatch allocates a game between identityA (ordinal 0) and
// identityB, or the AI when identityB is empty, and announces the first
// turn. Returns the new game's id.
func (m *GameManager) StartMatch(identityA string, connA Conn, identityB string, connB Conn) string {
	m.mu.Lock()

	game := &Game{
		ID:        uuid.NewString(),
		Board:     NewBoard(),
		StartedAt: time.Now(),
	}
	game.Players[0] = &Player{Identity: identityA, Ordinal: 0, Conn: connA}
	if identityB == "" {
		game.Players[1] = &Player{Identity: AIName, Ordinal: 1, IsAI: true}
		game.VsAI = true
	} else {
		game.Players[1] = &Player{Identity: identityB, Ordinal: 1, Conn: connB}
	}
	m.games[game.ID] = game

	m.sessions.SetInGame(identityA, game.ID)
	if !game.VsAI {
		m.sessions.SetInGame(identityB, game.ID)
	}

	for _, p := range game.Players {
		opponent := game.opponentOf(p.Identity)
		p.notify("match_found", matchFoundPayload{
			GameID:   game.ID,
			Opponent: opponent.Identity,
			Turn:     p.Ordinal,
		})
		p.notify("turn_update", turnUpdatePayload{YourTurn: p.Ordinal == game.Turn})
	}

	log.Printf("[game] match %s started: %s vs %s", game.ID, game.Players[0].Identity, game.Players[1].Identity)
	id := game.ID
	players := []string{game.Players[0].Identity, game.Players[1].Identity}
	m.mu.Unlock()

	m.bus.Publish("match_started", id, map[string]any{
		"gameId":  id,
		"players": players,
		"vsAi":    identityB == "",
	})
	return id
}

// ApplyMove validates and applies one drop for identity. Rejections
// that cannot come from a well-behaved client (unknown game, out of
// turn, out of range) are logged no-ops; a full column is reported back
// as an invalid_move notice.
func (m *GameManager) ApplyMove(gameID, identity string, column int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyMoveLocked(gameID, identity, column)
}

func (m *GameManager) applyMoveLocked(gameID, identity string, column int) {
	game := m.games[gameID]
	if game == nil {
		log.Printf("[game] move for %s ignored: %s", gameID, reasonNoSuchGame)
		return
	}
	mover := game.playerByIdentity(identity)
	if mover == nil || mover.Ordinal != game.Turn {
		log.Printf("[game] move by %s in %s ignored: %s", identity, gameID, reasonNotYourTurn)
		return
	}
	if !game.Board.InBounds(column) {
		log.Printf("[game] move by %s in %s ignored: %s", identity, gameID, reasonColumnOutOfRange)
		return
	}

	row, ok := game.Board.Drop(column, mover.Mark())
	if !ok {
		mover.notify("invalid_move", invalidMovePayload{Reason: reasonColumnFull})
		return
	}
	game.Moves = append(game.Moves, MoveRecord{
		Mover:     identity,
		Column:    column,
		Row:       row,
		AppliedAt: time.Now(),
	})

	grid := game.Board.Grid()
	for _, p := range game.Players {
		p.notify("board_update", boardUpdatePayload{Board: grid})
	}
	m.bus.Publish("move_made", gameID, map[string]any{
		"gameId": gameID,
		"player": identity,
		"column": column,
		"row":    row,
	})

	if game.Board.IsWin(mover.Mark()) {
		m.finishLocked(game, identity, identity, "win")
		return
	}
	if game.Board.IsDraw() {
		m.finishLocked(game, winnerDraw, winnerDraw, "draw")
		return
	}

	game.Turn = 1 - game.Turn
	for _, p := range game.Players {
		p.notify("turn_update", turnUpdatePayload{YourTurn: p.Ordinal == game.Turn})
	}
	if game.Players[game.Turn].IsAI {
		m.scheduleAIMove(game)
	}
}

func (m *GameManager) scheduleAIMove(game *Game) {
	id := game.ID
	game.aiTimer = time.AfterFunc(m.config.AIMoveDelay, func() {
		m.aiMove(id)
	})
}

func (m *GameManager) aiMove(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	game := m.games[gameID]
	if game == nil || !game.VsAI {
		return
	}
	ai := game.Players[game.Turn]
	if !ai.IsAI || game.Board.IsFull() {
		return
	}
	column := BestColumn(game.Board, ai.Mark(), m.config.SearchDepth, m.config.Heuristics)
	m.applyMoveLocked(gameID, ai.Identity, column)
}

// finishLocked ends the game: announces the outcome, hands the summary
// to the store and event bus, frees both sessions, and removes the game
// from the live set. protoWinner is what players see; summaryWinner is
// what gets persisted (they differ on forfeits).
func (m *GameManager) finishLocked(game *Game, protoWinner, summaryWinner, status string) {
	if game.forfeitTimer != nil {
		game.forfeitTimer.Stop()
		game.forfeitTimer = nil
	}
	if game.aiTimer != nil {
		game.aiTimer.Stop()
		game.aiTimer = nil
	}

	for _, p := range game.Players {
		p.notify("match_over", matchOverPayload{Winner: protoWinner})
		if !p.IsAI {
			m.sessions.SetFree(p.Identity)
		}
	}
	delete(m.games, game.ID)
	log.Printf("[game] match %s over: winner=%s status=%s moves=%d", game.ID, summaryWinner, status, len(game.Moves))

	summary := MatchSummary{
		GameID:          game.ID,
		Player1:         game.Players[0].Identity,
		Player2:         game.Players[1].Identity,
		Winner:          summaryWinner,
		Status:          status,
		DurationSeconds: int(time.Since(game.StartedAt).Seconds()),
		TotalMoves:      len(game.Moves),
		Moves:           game.Moves,
	}
	go m.persistResult(summary)
}

// persistResult is fire-and-forget bookkeeping: failures are logged and
// never reach the player-facing protocol.
func (m *GameManager) persistResult(summary MatchSummary) {
	if err := m.store.SaveMatch(summary); err != nil {
		log.Printf("[store] save match %s failed: %v", summary.GameID, err)
	} else {
		m.bus.Publish("match_saved", summary.GameID, map[string]any{
			"gameId":           summary.GameID,
			"player1":          summary.Player1,
			"player2":          summary.Player2,
			"winner":           summary.Winner,
			"duration_seconds": summary.DurationSeconds,
			"total_moves":      summary.TotalMoves,
		})
	}

	for _, identity := range []string{summary.Player1, summary.Player2} {
		if identity == AIName {
			continue
		}
		outcome := OutcomeLoss
		switch {
		case summary.Winner == winnerDraw:
			outcome = OutcomeDraw
		case summary.Winner == identity:
			outcome = OutcomeWin
		}
		if err := m.store.UpdateStanding(identity, outcome); err != nil {
			log.Printf("[store] standing update for %s failed: %v", identity, err)
			continue
		}
		m.bus.Publish("standing_updated", summary.GameID, map[string]any{
			"username": identity,
			"result":   string(outcome),
		})
	}
}

// HandleDisconnect reacts to transport loss for identity. Against the
// AI the game ends immediately; against a human the opponent is told a
// grace period started and a forfeit timer is armed.
func (m *GameManager) HandleDisconnect(identity string) {
	session, ok := m.sessions.Peek(identity)
	gameID := ""
	if ok {
		gameID = session.GameID
	}
	m.sessions.MarkDisconnected(identity)

	if gameID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	game := m.games[gameID]
	if game == nil {
		return
	}
	player := game.playerByIdentity(identity)
	if player == nil {
		return
	}
	player.Conn = nil

	if game.VsAI {
		m.finishLocked(game, AIName, AIName, "disconnect")
		return
	}

	opponent := game.opponentOf(identity)
	opponent.notify("opponent_disconnected", opponentDisconnectedPayload{
		Username: identity,
		Message:  "Opponent disconnected, waiting 30s for reconnection",
	})
	if game.forfeitTimer != nil {
		game.forfeitTimer.Stop()
	}
	game.forfeitTimer = time.AfterFunc(m.config.GraceWindow, func() {
		m.forfeit(gameID, identity)
	})
}

// forfeit fires after the grace window. It re-validates that the
// disconnected identity never made it back before declaring the
// remaining participant winner.
func (m *GameManager) forfeit(gameID, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	game := m.games[gameID]
	if game == nil {
		return
	}
	if session, ok := m.sessions.Peek(identity); ok && session.State != SessionGrace {
		// Reconnected between arming and firing.
		return
	}
	opponent := game.opponentOf(identity)
	log.Printf("[game] %s forfeits match %s to %s", identity, gameID, opponent.Identity)
	m.finishLocked(game, winnerForfeit, opponent.Identity, "forfeit")
}

// HandleReconnect resumes a graced session: validates the window,
// recovers the stored game id, and rebinds into the match.
func (m *GameManager) HandleReconnect(identity string, conn Conn) bool {
	gameID, err := m.sessions.Reconnect(identity, conn)
	if err != nil {
		conn.Send("reconnect_failed", reconnectFailedPayload{Message: err.Error()})
		return false
	}
	if gameID == "" {
		conn.Send("reconnect_failed", reconnectFailedPayload{Message: "no active game to resume"})
		return false
	}
	if !m.ResumeGame(gameID, identity, conn) {
		m.sessions.SetFree(identity)
		conn.Send("reconnect_failed", reconnectFailedPayload{Message: "game no longer exists"})
		return false
	}
	return true
}

// ResumeGame rebinds conn to identity's seat in gameID (matched by
// identity, never by the stale connection), replays the current board
// and turn, and tells the opponent about the rejoin.
func (m *GameManager) ResumeGame(gameID, identity string, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	game := m.games[gameID]
	if game == nil {
		return false
	}
	player := game.playerByIdentity(identity)
	if player == nil {
		return false
	}
	player.Conn = conn
	if game.forfeitTimer != nil {
		game.forfeitTimer.Stop()
		game.forfeitTimer = nil
	}
	conn.Send("rejoined", rejoinedPayload{
		GameID:   gameID,
		Board:    game.Board.Grid(),
		YourTurn: player.Ordinal == game.Turn,
	})
	game.opponentOf(identity).notify("opponent_rejoined", opponentRejoinedPayload{Username: identity})
	log.Printf("[game] %s rejoined match %s", identity, gameID)
	return true
}

// RequestRematch forwards a rematch offer when the opponent is logged
// in and reachable; otherwise the requester hears back immediately.
func (m *GameManager) RequestRematch(requester string, requesterConn Conn, opponent string) {
	session, ok := m.sessions.Peek(opponent)
	if !ok || session.State == SessionGrace {
		requesterConn.Send("rematch_unavailable", rematchUnavailablePayload{Message: opponent + " is not logged in"})
		return
	}
	if session.State == SessionInGame {
		requesterConn.Send("rematch_unavailable", rematchUnavailablePayload{Message: opponent + " is already in a match"})
		return
	}
	if session.Conn == nil {
		requesterConn.Send("rematch_unavailable", rematchUnavailablePayload{Message: opponent + " is unreachable"})
		return
	}

	m.mu.Lock()
	m.rematchOffers[opponent] = requester
	m.mu.Unlock()

	session.Conn.Send("rematch_request", rematchRequestedPayload{From: requester})
	log.Printf("[game] rematch offer: %s -> %s", requester, opponent)
}

// RespondRematch resolves a pending offer. Accept re-validates both
// sessions before creating the fresh game, closing the race where one
// side started a different match in the interim.
func (m *GameManager) RespondRematch(requester, responder string, accept bool, responderConn Conn) {
	m.mu.Lock()
	pending, ok := m.rematchOffers[responder]
	if ok && pending == requester {
		delete(m.rematchOffers, responder)
	}
	m.mu.Unlock()
	if !ok || pending != requester {
		responderConn.Send("error", errorPayload{Message: "no pending rematch request"})
		return
	}

	requesterSession, reachable := m.sessions.Peek(requester)
	if !reachable || requesterSession.Conn == nil {
		responderConn.Send("rematch_unavailable", rematchUnavailablePayload{Message: requester + " is no longer available"})
		return
	}

	if !accept {
		requesterSession.Conn.Send("rematch_declined", rematchDeclinedPayload{By: responder})
		log.Printf("[game] rematch declined: %s -> %s", responder, requester)
		return
	}

	responderSession, ok := m.sessions.Peek(responder)
	if !ok || responderSession.Conn == nil {
		requesterSession.Conn.Send("rematch_unavailable", rematchUnavailablePayload{Message: responder + " is no longer available"})
		return
	}
	if requesterSession.State != SessionIdle || responderSession.State != SessionIdle {
		msg := rematchUnavailablePayload{Message: "a player is already in another match"}
		requesterSession.Conn.Send("rematch_unavailable", msg)
		responderConn.Send("rematch_unavailable", msg)
		return
	}

	gameID := m.StartMatch(requester, requesterSession.Conn, responder, responderConn)
	requesterSession.Conn.Send("rematch_started", rematchStartedPayload{GameID: gameID})
	responderConn.Send("rematch_started", rematchStartedPayload{GameID: gameID})
}

// SweepStale drops games that have been running longer than maxAge and
// frees their sessions. Guards the live set against leaked matches.
func (m *GameManager) SweepStale(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, game := range m.games {
		if now.Sub(game.StartedAt) <= maxAge {
			continue
		}
		if game.forfeitTimer != nil {
			game.forfeitTimer.Stop()
		}
		if game.aiTimer != nil {
			game.aiTimer.Stop()
		}
		for _, p := range game.Players {
			if !p.IsAI {
				m.sessions.SetFree(p.Identity)
			}
		}
		delete(m.games, id)
		removed++
	}
	if removed > 0 {
		log.Printf("[game] swept %d stale matches", removed)
	}
	return removed
}

// LiveGames reports the current number of live matches.
func (m *GameManager) LiveGames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

// HasGame reports whether gameID is still live.
func (m *GameManager) HasGame(gameID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[gameID] != nil
}
