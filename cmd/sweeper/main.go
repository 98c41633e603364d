package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/replyguy/backend/internal/config"
	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[sweeper] No .env file loaded: %v", err)
	}

	cfg := config.Load()

	log.Printf("[sweeper] Starting trial token sweeper (env=%s)", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.DefaultConfig(cfg.DatabaseURL)
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatalf("[sweeper] Failed to connect to database: %v", err)
	}
	defer db.Close()

	trialRepo := repository.NewTrialTokenRepository(db)

	sweep := func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, 1*time.Minute)
		defer sweepCancel()

		deleted, err := trialRepo.PurgeExpired(sweepCtx, time.Now())
		if err != nil {
			log.Printf("[sweeper] Purge failed: %v", err)
			return
		}
		if deleted > 0 {
			log.Printf("[sweeper] Purged %d expired trial tokens", deleted)
		}
	}

	// Run once at startup, then hourly
	sweep()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", sweep); err != nil {
		log.Fatalf("[sweeper] Failed to schedule sweep: %v", err)
	}
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[sweeper] Shutting down...")

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Println("[sweeper] Timed out waiting for running jobs")
	}

	log.Println("[sweeper] Stopped")
}
