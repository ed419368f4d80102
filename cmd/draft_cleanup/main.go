package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cleanhub/internal/config"
	"cleanhub/internal/database"
	"cleanhub/internal/repository"
)

// draft_cleanup removes checkout drafts that never turned into a booking and
// ledger rows for webhook events that were applied long ago. Failed ledger
// rows are kept for inspection and replay.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn msg=.env not loaded err=%v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	now := time.Now().UTC()

	drafts, err := repository.NewDraftRepository(db).DeleteOlderThan(ctx, now.Add(-cfg.DraftTTL))
	if err != nil {
		log.Fatalf("cleanup pending_booking_drafts failed: %v", err)
	}

	events, err := repository.NewWebhookEventRepository(db).DeleteAppliedBefore(ctx, now.Add(-cfg.EventRetention))
	if err != nil {
		log.Fatalf("cleanup webhook_events failed: %v", err)
	}

	log.Printf("cleanup completed: pending_booking_drafts=%d webhook_events=%d", drafts, events)
}
