package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const apiListLimit = 10

// RecordBrowser backs the read-only HTTP surface.
type RecordBrowser interface {
	RecentGames(limit int) ([]MatchRecord, error)
	TopStandings(limit int) ([]Standing, error)
}

type leaderboardEntry struct {
	Username   string  `json:"username"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	TotalGames int     `json:"total_games"`
	WinRate    float64 `json:"win_rate"`
}

func NewRouter(server *Server, browser RecordBrowser) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/api/games", func(w http.ResponseWriter, r *http.Request) {
		records, err := browser.RecentGames(apiListLimit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if records == nil {
			records = []MatchRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})

	r.Get("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		standings, err := browser.TopStandings(apiListLimit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		entries := make([]leaderboardEntry, 0, len(standings))
		for _, s := range standings {
			entry := leaderboardEntry{
				Username:   s.Username,
				Wins:       s.Wins,
				Losses:     s.Losses,
				Draws:      s.Draws,
				TotalGames: s.Wins + s.Losses + s.Draws,
			}
			if entry.TotalGames > 0 {
				entry.WinRate = float64(s.Wins) / float64(entry.TotalGames)
			}
			entries = append(entries, entry)
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/ws", server.ServeWS)

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
