package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeBrowser struct {
	games     []MatchRecord
	standings []Standing
}

func (b *fakeBrowser) RecentGames(limit int) ([]MatchRecord, error) {
	return b.games, nil
}

func (b *fakeBrowser) TopStandings(limit int) ([]Standing, error) {
	return b.standings, nil
}

func newTestRouter(browser RecordBrowser) http.Handler {
	sessions, games, _, _ := newTestManager(time.Minute)
	mm := NewMatchmaker(sessions, games, time.Hour)
	return NewRouter(NewServer(sessions, mm, games), browser)
}

func TestPingEndpoint(t *testing.T) {
	router := newTestRouter(&fakeBrowser{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["ok"] {
		t.Fatalf("ping body = %v", body)
	}
}

func TestGamesEndpointEmptyList(t *testing.T) {
	router := newTestRouter(&fakeBrowser{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var records []MatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rec.Body.String())
	}
	if len(records) != 0 {
		t.Fatalf("records = %v, want empty", records)
	}
}

func TestLeaderboardComputesRates(t *testing.T) {
	browser := &fakeBrowser{standings: []Standing{
		{Username: "alice", Wins: 3, Losses: 1, Draws: 0},
		{Username: "bob", Wins: 0, Losses: 0, Draws: 0},
	}}
	router := newTestRouter(browser)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entries []leaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].TotalGames != 4 || entries[0].WinRate != 0.75 {
		t.Fatalf("alice entry = %+v", entries[0])
	}
	if entries[1].TotalGames != 0 || entries[1].WinRate != 0 {
		t.Fatalf("zero-game entry = %+v", entries[1])
	}
}
