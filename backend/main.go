package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const staleGameMaxAge = 2 * time.Hour

func main() {
	config := LoadConfig()

	var store MatchStore = noopStore{}
	var browser RecordBrowser = noopStore{}
	if config.DatabaseURL != "" {
		gormStore, err := NewGormStore(config.DatabaseURL)
		if err != nil {
			log.Printf("[store] connect failed, results will not be saved: %v", err)
		} else {
			store = gormStore
			browser = gormStore
			log.Println("[store] connected to postgres")
		}
	} else {
		log.Println("[store] DATABASE_URL not set, results will not be saved")
	}

	var bus EventBus = noopBus{}
	if len(config.KafkaBrokers) > 0 {
		kafkaBus := NewKafkaBus(config.KafkaBrokers, config.KafkaTopic)
		defer func() {
			if err := kafkaBus.Close(); err != nil {
				log.Printf("[kafka] close failed: %v", err)
			}
		}()
		bus = kafkaBus
		log.Printf("[kafka] publishing to %s via %v", config.KafkaTopic, config.KafkaBrokers)
	} else {
		log.Println("[kafka] KAFKA_BROKERS not set, events disabled")
	}

	sessions := NewSessionRegistry(config.GraceWindow)
	games := NewGameManager(sessions, store, bus, config)
	matchmaker := NewMatchmaker(sessions, games, config.MatchmakingFallback)
	server := NewServer(sessions, matchmaker, games)

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[backend] scheduler unavailable: %v", err)
	} else {
		_, _ = sched.NewJob(
			gocron.DurationJob(10*time.Minute),
			gocron.NewTask(func() {
				if dropped := games.SweepStale(staleGameMaxAge); dropped > 0 {
					log.Printf("[game] swept %d stale games", dropped)
				}
			}),
		)
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: NewRouter(server, browser),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Printf("[backend] listening on :%d", config.Port)
	var runErr error
	select {
	case <-sigCtx.Done():
		log.Printf("[backend] shutdown signal received: %v", sigCtx.Err())
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
			log.Printf("[backend] server error: %v", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[backend] graceful shutdown failed: %v", err)
		if closeErr := httpServer.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Printf("[backend] forced close failed: %v", closeErr)
		}
	}

	if runErr != nil {
		log.Printf("[backend] exiting after server error: %v", runErr)
	}
}
