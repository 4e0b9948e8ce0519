package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string

	GraceWindow         time.Duration
	MatchmakingFallback time.Duration
	SearchDepth         int
	AIMoveDelay         time.Duration

	Heuristics HeuristicWeights
}

// HeuristicWeights tunes the leaf evaluation of the move search.
type HeuristicWeights struct {
	Center        float64
	WindowFour    float64
	WindowThree   float64
	WindowTwo     float64
	OpponentThree float64
}

func DefaultConfig() Config {
	return Config{
		Port:       8080,
		KafkaTopic: "game-events",

		GraceWindow:         30 * time.Second,
		MatchmakingFallback: 10 * time.Second,
		SearchDepth:         5,
		AIMoveDelay:         450 * time.Millisecond,

		Heuristics: HeuristicWeights{
			Center:        3.0,
			WindowFour:    100.0,
			WindowThree:   5.0,
			WindowTwo:     2.0,
			OpponentThree: 4.0,
		},
	}
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, reading environment variables directly")
	}

	config := DefaultConfig()
	config.Port = envInt("PORT", config.Port)
	config.DatabaseURL = os.Getenv("DATABASE_URL")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				config.KafkaBrokers = append(config.KafkaBrokers, broker)
			}
		}
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		config.KafkaTopic = topic
	}
	config.GraceWindow = envDuration("GRACE_WINDOW", config.GraceWindow)
	config.MatchmakingFallback = envDuration("MATCHMAKING_FALLBACK", config.MatchmakingFallback)
	config.SearchDepth = envInt("AI_SEARCH_DEPTH", config.SearchDepth)
	config.AIMoveDelay = envDuration("AI_MOVE_DELAY", config.AIMoveDelay)
	return config
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return value
}
