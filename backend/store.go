package main

import (
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

type MatchSummary struct {
	GameID          string
	Player1         string
	Player2         string
	Winner          string
	Status          string
	DurationSeconds int
	TotalMoves      int
	Moves           []MoveRecord
}

// MatchStore is the persistence contract the game manager depends on.
// Both methods are best-effort: callers log failures and move on.
type MatchStore interface {
	SaveMatch(summary MatchSummary) error
	UpdateStanding(identity string, outcome Outcome) error
}

// MatchRecord archives one finished match.
type MatchRecord struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	Player1         string    `gorm:"index;not null" json:"player1"`
	Player2         string    `gorm:"not null" json:"player2"`
	Winner          string    `json:"winner"`
	Status          string    `gorm:"type:varchar(16)" json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	TotalMoves      int       `json:"total_moves"`
	Moves           string    `gorm:"type:jsonb" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Standing aggregates win/loss/draw counts per identity.
type Standing struct {
	Username string `gorm:"primaryKey" json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MatchRecord{}, &Standing{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveMatch(summary MatchSummary) error {
	moves, err := json.Marshal(summary.Moves)
	if err != nil {
		return err
	}
	record := MatchRecord{
		ID:              summary.GameID,
		Player1:         summary.Player1,
		Player2:         summary.Player2,
		Winner:          summary.Winner,
		Status:          summary.Status,
		DurationSeconds: summary.DurationSeconds,
		TotalMoves:      summary.TotalMoves,
		Moves:           string(moves),
	}
	return s.db.Create(&record).Error
}

func (s *GormStore) UpdateStanding(identity string, outcome Outcome) error {
	standing := Standing{Username: identity}
	var column string
	switch outcome {
	case OutcomeWin:
		standing.Wins = 1
		column = "wins"
	case OutcomeDraw:
		standing.Draws = 1
		column = "draws"
	default:
		standing.Losses = 1
		column = "losses"
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.Assignments(map[string]any{column: gorm.Expr(column + " + 1")}),
	}).Create(&standing).Error
}

func (s *GormStore) RecentGames(limit int) ([]MatchRecord, error) {
	var records []MatchRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (s *GormStore) TopStandings(limit int) ([]Standing, error) {
	var standings []Standing
	err := s.db.Order("wins DESC").Limit(limit).Find(&standings).Error
	return standings, err
}

// noopStore keeps the server runnable without a database; bookkeeping
// is best-effort by contract.
type noopStore struct{}

func (noopStore) SaveMatch(MatchSummary) error           { return nil }
func (noopStore) UpdateStanding(string, Outcome) error   { return nil }
func (noopStore) RecentGames(int) ([]MatchRecord, error) { return nil, nil }
func (noopStore) TopStandings(int) ([]Standing, error)   { return nil, nil }
