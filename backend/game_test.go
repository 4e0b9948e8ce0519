package main

import (
	"sync"
	"testing"
	"time"
)

type sentMessage struct {
	Type    string
	Payload any
}

// fakeConn implements Conn and records everything sent through it.
type fakeConn struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (c *fakeConn) Send(msgType string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{Type: msgType, Payload: payload})
}

func (c *fakeConn) messages(msgType string) []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentMessage
	for _, m := range c.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) count(msgType string) int {
	return len(c.messages(msgType))
}

type fakeStore struct {
	mu        sync.Mutex
	saved     []MatchSummary
	standings map[string][]Outcome
}

func newFakeStore() *fakeStore {
	return &fakeStore{standings: make(map[string][]Outcome)}
}

func (s *fakeStore) SaveMatch(summary MatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, summary)
	return nil
}

func (s *fakeStore) UpdateStanding(identity string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standings[identity] = append(s.standings[identity], outcome)
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *fakeStore) lastSaved() MatchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

func (s *fakeStore) outcomes(identity string) []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.standings[identity]...)
}

type fakeBus struct {
	mu    sync.Mutex
	kinds []string
}

func (b *fakeBus) Publish(kind, key string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, kind)
}

func (b *fakeBus) countKind(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestManager(grace time.Duration) (*SessionRegistry, *GameManager, *fakeStore, *fakeBus) {
	config := DefaultConfig()
	config.GraceWindow = grace
	config.AIMoveDelay = 5 * time.Millisecond
	config.SearchDepth = 3
	sessions := NewSessionRegistry(grace)
	store := newFakeStore()
	bus := &fakeBus{}
	games := NewGameManager(sessions, store, bus, config)
	return sessions, games, store, bus
}

func TestVerticalWinEndsMatch(t *testing.T) {
	sessions, games, store, bus := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", connB)

	for _, conn := range []*fakeConn{connA, connB} {
		if conn.count("match_found") != 1 {
			t.Fatalf("match_found not delivered to both players")
		}
	}

	// Alice stacks column 0, Bob answers in column 1; Alice's fourth
	// drop completes a vertical four.
	for i := 0; i < 3; i++ {
		games.ApplyMove(gameID, "alice", 0)
		games.ApplyMove(gameID, "bob", 1)
	}
	games.ApplyMove(gameID, "alice", 0)

	over := connB.messages("match_over")
	if len(over) != 1 {
		t.Fatalf("match_over count = %d, want 1", len(over))
	}
	if winner := over[0].Payload.(matchOverPayload).Winner; winner != "alice" {
		t.Fatalf("winner = %q, want alice", winner)
	}
	if games.HasGame(gameID) {
		t.Fatalf("finished game still live")
	}
	for _, identity := range []string{"alice", "bob"} {
		session, ok := sessions.Peek(identity)
		if !ok || session.State != SessionIdle {
			t.Fatalf("%s not returned to idle after match", identity)
		}
	}

	waitUntil(t, time.Second, func() bool { return store.savedCount() == 1 })
	summary := store.lastSaved()
	if summary.Winner != "alice" || summary.Status != "win" || summary.TotalMoves != 7 {
		t.Fatalf("summary = %+v", summary)
	}
	waitUntil(t, time.Second, func() bool { return bus.countKind("standing_updated") == 2 })
	if got := store.outcomes("alice"); len(got) != 1 || got[0] != OutcomeWin {
		t.Fatalf("alice outcomes = %v", got)
	}
	if got := store.outcomes("bob"); len(got) != 1 || got[0] != OutcomeLoss {
		t.Fatalf("bob outcomes = %v", got)
	}
	if bus.countKind("move_made") != 7 {
		t.Fatalf("move_made events = %d, want 7", bus.countKind("move_made"))
	}
}

func TestOutOfTurnMoveIgnored(t *testing.T) {
	_, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", connB)

	games.ApplyMove(gameID, "bob", 3)
	if connB.count("board_update") != 0 {
		t.Fatalf("out-of-turn move changed the board")
	}

	games.ApplyMove(gameID, "alice", 3)
	if connB.count("board_update") != 1 {
		t.Fatalf("in-turn move after rejection did not apply")
	}
}

func TestOutOfRangeColumnIgnored(t *testing.T) {
	_, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", &fakeConn{})

	games.ApplyMove(gameID, "alice", -1)
	games.ApplyMove(gameID, "alice", BoardCols)
	if connA.count("board_update") != 0 || connA.count("invalid_move") != 0 {
		t.Fatalf("out-of-range column produced output")
	}

	// Still Alice's turn.
	games.ApplyMove(gameID, "alice", 0)
	if connA.count("board_update") != 1 {
		t.Fatalf("turn lost after out-of-range rejection")
	}
}

func TestFullColumnReportedToMover(t *testing.T) {
	_, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", connB)

	// Alternate drops fill column 0 without a win.
	for i := 0; i < 3; i++ {
		games.ApplyMove(gameID, "alice", 0)
		games.ApplyMove(gameID, "bob", 0)
	}
	games.ApplyMove(gameID, "alice", 0)

	invalid := connA.messages("invalid_move")
	if len(invalid) != 1 {
		t.Fatalf("invalid_move count = %d, want 1", len(invalid))
	}
	if reason := invalid[0].Payload.(invalidMovePayload).Reason; reason != reasonColumnFull {
		t.Fatalf("reason = %q, want %q", reason, reasonColumnFull)
	}
	if connB.count("invalid_move") != 0 {
		t.Fatalf("rejection leaked to the opponent")
	}

	// The turn stays with Alice; a legal drop still lands.
	games.ApplyMove(gameID, "alice", 1)
	if connA.count("board_update") != 7 {
		t.Fatalf("board updates = %d, want 7", connA.count("board_update"))
	}
}

func TestAIAnswersAfterHumanMove(t *testing.T) {
	_, games, _, _ := newTestManager(time.Minute)
	conn := &fakeConn{}
	gameID := games.StartMatch("alice", conn, "", nil)

	found := conn.messages("match_found")
	if len(found) != 1 || found[0].Payload.(matchFoundPayload).Opponent != AIName {
		t.Fatalf("AI match not announced: %+v", found)
	}

	games.ApplyMove(gameID, "alice", 3)
	waitUntil(t, time.Second, func() bool { return conn.count("turn_update") == 3 })

	if conn.count("board_update") != 2 {
		t.Fatalf("board updates = %d, want 2", conn.count("board_update"))
	}
	updates := conn.messages("turn_update")
	last := updates[len(updates)-1].Payload.(turnUpdatePayload)
	if !last.YourTurn {
		t.Fatalf("turn did not return to the human after the AI move")
	}
}

func TestDisconnectDuringAIMatchEndsImmediately(t *testing.T) {
	_, games, store, _ := newTestManager(time.Minute)
	conn := &fakeConn{}
	gameID := games.StartMatch("alice", conn, "", nil)

	games.HandleDisconnect("alice")
	if games.HasGame(gameID) {
		t.Fatalf("AI match survived its only human disconnecting")
	}
	waitUntil(t, time.Second, func() bool { return store.savedCount() == 1 })
	summary := store.lastSaved()
	if summary.Winner != AIName || summary.Status != "disconnect" {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestForfeitAfterGraceWindow(t *testing.T) {
	_, games, store, _ := newTestManager(20 * time.Millisecond)
	connA := &fakeConn{}
	connB := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", connB)

	games.HandleDisconnect("bob")
	if connA.count("opponent_disconnected") != 1 {
		t.Fatalf("opponent not told about the disconnect")
	}

	waitUntil(t, time.Second, func() bool { return !games.HasGame(gameID) })
	over := connA.messages("match_over")
	if len(over) != 1 || over[0].Payload.(matchOverPayload).Winner != winnerForfeit {
		t.Fatalf("forfeit announcement = %+v", over)
	}
	waitUntil(t, time.Second, func() bool { return store.savedCount() == 1 })
	summary := store.lastSaved()
	if summary.Winner != "alice" || summary.Status != "forfeit" {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestReconnectCancelsForfeit(t *testing.T) {
	sessions, games, _, _ := newTestManager(60 * time.Millisecond)
	connA := &fakeConn{}
	connB := &fakeConn{}
	gameID := games.StartMatch("alice", connA, "bob", connB)
	games.ApplyMove(gameID, "alice", 2)

	games.HandleDisconnect("bob")
	fresh := &fakeConn{}
	if !games.HandleReconnect("bob", fresh) {
		t.Fatalf("reconnect within window rejected")
	}

	rejoined := fresh.messages("rejoined")
	if len(rejoined) != 1 {
		t.Fatalf("rejoined count = %d, want 1", len(rejoined))
	}
	payload := rejoined[0].Payload.(rejoinedPayload)
	if payload.GameID != gameID || !payload.YourTurn {
		t.Fatalf("rejoined payload = %+v", payload)
	}
	if payload.Board[BoardRows-1][2] != int(CellOne) {
		t.Fatalf("replayed board missing earlier move")
	}
	if connA.count("opponent_rejoined") != 1 {
		t.Fatalf("opponent not told about the rejoin")
	}

	time.Sleep(120 * time.Millisecond)
	if !games.HasGame(gameID) {
		t.Fatalf("forfeit fired despite the reconnect")
	}
	if session, _ := sessions.Peek("bob"); session.State != SessionInGame {
		t.Fatalf("bob not back in game after reconnect")
	}

	// Play continues on the fresh connection.
	games.ApplyMove(gameID, "bob", 2)
	if fresh.count("board_update") != 1 {
		t.Fatalf("move after reconnect not applied")
	}
}

func TestReconnectWithoutGameFails(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	if err := sessions.Register("alice", &fakeConn{}, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	sessions.MarkDisconnected("alice")

	conn := &fakeConn{}
	if games.HandleReconnect("alice", conn) {
		t.Fatalf("reconnect without a stored game succeeded")
	}
	if conn.count("reconnect_failed") != 1 {
		t.Fatalf("reconnect_failed not delivered")
	}
}

func TestRematchAcceptStartsFreshGame(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	if err := sessions.Register("alice", connA, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sessions.Register("bob", connB, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	games.RequestRematch("alice", connA, "bob")
	request := connB.messages("rematch_request")
	if len(request) != 1 || request[0].Payload.(rematchRequestedPayload).From != "alice" {
		t.Fatalf("rematch request not forwarded: %+v", request)
	}

	games.RespondRematch("alice", "bob", true, connB)
	if connA.count("rematch_started") != 1 || connB.count("rematch_started") != 1 {
		t.Fatalf("rematch_started not delivered to both players")
	}
	if games.LiveGames() != 1 {
		t.Fatalf("live games = %d, want 1", games.LiveGames())
	}
	// The requester always opens the rematch.
	found := connA.messages("match_found")
	if len(found) != 1 || found[0].Payload.(matchFoundPayload).Turn != 0 {
		t.Fatalf("requester did not get the opening turn: %+v", found)
	}
}

func TestRematchDecline(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	if err := sessions.Register("alice", connA, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sessions.Register("bob", connB, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	games.RequestRematch("alice", connA, "bob")
	games.RespondRematch("alice", "bob", false, connB)

	declined := connA.messages("rematch_declined")
	if len(declined) != 1 || declined[0].Payload.(rematchDeclinedPayload).By != "bob" {
		t.Fatalf("decline not delivered: %+v", declined)
	}
	if games.LiveGames() != 0 {
		t.Fatalf("declined rematch created a game")
	}
}

func TestRematchUnavailableWhenOpponentGone(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	if err := sessions.Register("alice", connA, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	games.RequestRematch("alice", connA, "bob")
	if connA.count("rematch_unavailable") != 1 {
		t.Fatalf("missing opponent not reported")
	}

	// Opponent mid-match is equally unavailable.
	if err := sessions.Register("bob", &fakeConn{}, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	sessions.SetInGame("bob", "g1")
	games.RequestRematch("alice", connA, "bob")
	if connA.count("rematch_unavailable") != 2 {
		t.Fatalf("busy opponent not reported")
	}
}

func TestRespondRematchWithoutOffer(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	connB := &fakeConn{}
	if err := sessions.Register("bob", connB, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	games.RespondRematch("alice", "bob", true, connB)
	if connB.count("error") != 1 {
		t.Fatalf("unsolicited accept not rejected")
	}
	if games.LiveGames() != 0 {
		t.Fatalf("unsolicited accept created a game")
	}
}

func TestRematchAcceptRacesWithNewMatch(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	connA := &fakeConn{}
	connB := &fakeConn{}
	if err := sessions.Register("alice", connA, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sessions.Register("bob", connB, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	games.RequestRematch("alice", connA, "bob")
	// Alice gets pulled into another match before Bob answers.
	games.StartMatch("alice", connA, "", nil)

	games.RespondRematch("alice", "bob", true, connB)
	if connB.count("rematch_unavailable") != 1 {
		t.Fatalf("stale accept not rejected")
	}
	if games.LiveGames() != 1 {
		t.Fatalf("live games = %d, want only the AI match", games.LiveGames())
	}
}

func TestSweepStaleFreesSessions(t *testing.T) {
	sessions, games, _, _ := newTestManager(time.Minute)
	gameID := games.StartMatch("alice", &fakeConn{}, "bob", &fakeConn{})

	if removed := games.SweepStale(time.Hour); removed != 0 {
		t.Fatalf("young game swept")
	}
	if removed := games.SweepStale(0); removed != 1 {
		t.Fatalf("stale game not swept")
	}
	if games.HasGame(gameID) {
		t.Fatalf("swept game still live")
	}
	if session, _ := sessions.Peek("alice"); session.State != SessionIdle {
		t.Fatalf("swept player not freed")
	}
}
