package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const snapshotEvery = 5

type gameEvent struct {
	Type            string   `json:"type"`
	Timestamp       string   `json:"timestamp"`
	GameID          string   `json:"gameId"`
	Players         []string `json:"players"`
	Player          string   `json:"player"`
	Player1         string   `json:"player1"`
	Player2         string   `json:"player2"`
	Winner          string   `json:"winner"`
	DurationSeconds float64  `json:"duration_seconds"`
	Username        string   `json:"username"`
	Result          string   `json:"result"`
}

type userStat struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

type metrics struct {
	TotalGames    int
	TotalDuration float64
	GamesPerHour  map[string]int
	Winners       map[string]int
	UserStats     map[string]*userStat
}

func newMetrics() *metrics {
	return &metrics{
		GamesPerHour: make(map[string]int),
		Winners:      make(map[string]int),
		UserStats:    make(map[string]*userStat),
	}
}

func (m *metrics) avgDuration() float64 {
	if m.TotalGames == 0 {
		return 0
	}
	return m.TotalDuration / float64(m.TotalGames)
}

func (m *metrics) hourKey(timestamp string) string {
	at, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		at = time.Now().UTC()
	}
	return at.Format("2006-01-02 15:00")
}

// apply folds one event into the running counters and reports whether
// it completed a game.
func (m *metrics) apply(event gameEvent) bool {
	switch event.Type {
	case "match_started":
		log.Printf("[analytics] match started: %s (%s)", event.GameID, strings.Join(event.Players, " vs "))
	case "move_made":
		log.Printf("[analytics] move by %s in game %s", event.Player, event.GameID)
	case "match_saved":
		m.TotalGames++
		m.TotalDuration += event.DurationSeconds
		m.GamesPerHour[m.hourKey(event.Timestamp)]++
		if event.Winner != "" && event.Winner != "Draw" && event.Winner != "Bot" {
			m.Winners[event.Winner]++
		}
		log.Printf("[analytics] match saved: %s vs %s, winner %s", event.Player1, event.Player2, event.Winner)
		return true
	case "standing_updated":
		stat := m.UserStats[event.Username]
		if stat == nil {
			stat = &userStat{}
			m.UserStats[event.Username] = stat
		}
		switch event.Result {
		case "win":
			stat.Wins++
		case "loss":
			stat.Losses++
		case "draw":
			stat.Draws++
		}
		log.Printf("[analytics] standing updated: %s -> %s", event.Username, event.Result)
	default:
		log.Printf("[analytics] unhandled event type %q", event.Type)
	}
	return false
}

func (m *metrics) print() {
	fmt.Println("=== Real-time Game Analytics ===")
	fmt.Printf("Total Games: %d\n", m.TotalGames)
	fmt.Printf("Average Duration: %.2fs\n", m.avgDuration())
	fmt.Printf("Most Frequent Winners: %s\n", formatCounts(m.Winners))
	fmt.Printf("Games per Hour: %s\n", formatCounts(m.GamesPerHour))
	fmt.Println("================================")
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return strings.Join(parts, " ")
}

// MetricsSnapshot is persisted periodically so dashboards survive
// consumer restarts.
type MetricsSnapshot struct {
	ID                 uint      `gorm:"primaryKey"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	TotalGames         int
	AvgDurationSeconds float64
	Winners            string `gorm:"type:jsonb"`
	GamesPerHour       string `gorm:"type:jsonb"`
	UserStats          string `gorm:"type:jsonb"`
}

func saveSnapshot(db *gorm.DB, m *metrics) {
	winners, _ := json.Marshal(m.Winners)
	perHour, _ := json.Marshal(m.GamesPerHour)
	users, _ := json.Marshal(m.UserStats)
	snapshot := MetricsSnapshot{
		TotalGames:         m.TotalGames,
		AvgDurationSeconds: m.avgDuration(),
		Winners:            string(winners),
		GamesPerHour:       string(perHour),
		UserStats:          string(users),
	}
	if err := db.Create(&snapshot).Error; err != nil {
		log.Printf("[analytics] snapshot save failed: %v", err)
		return
	}
	log.Printf("[analytics] snapshot %d saved", snapshot.ID)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[analytics] .env not loaded: %v", err)
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "game-events"
	}

	var db *gorm.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		opened, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Printf("[analytics] postgres connect failed, snapshots disabled: %v", err)
		} else if err := opened.AutoMigrate(&MetricsSnapshot{}); err != nil {
			log.Printf("[analytics] migrate failed, snapshots disabled: %v", err)
		} else {
			db = opened
		}
	} else {
		log.Println("[analytics] DATABASE_URL not set, snapshots disabled")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(brokers, ","),
		GroupID: "analytics-group",
		Topic:   topic,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("[analytics] reader close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[analytics] consuming %s from %s", topic, brokers)
	stats := newMetrics()
	for {
		message, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("[analytics] shutting down")
				return
			}
			log.Printf("[analytics] read failed: %v", err)
			return
		}

		var event gameEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			log.Printf("[analytics] bad event payload: %v", err)
			continue
		}

		completed := stats.apply(event)
		if completed {
			stats.print()
			if db != nil && stats.TotalGames%snapshotEvery == 0 {
				saveSnapshot(db, stats)
			}
		}
	}
}
