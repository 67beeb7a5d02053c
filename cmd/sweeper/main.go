package main

import (
	"log"
	"time"

	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/env"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
	"github.com/habitflow/habitflow/internal/pkg/sweeper"
)

// One-shot lifecycle sweep, for cron setups that run the web app without
// the built-in background runner.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()

	db := database.GetDB()
	repo := billing.NewRepository(db)
	svc := billing.NewService(repo, notifier.LogNotifier{})

	stats, err := sweeper.New(repo, svc, notifier.LogNotifier{}).Sweep(time.Now())
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
	log.Printf("sweep done: expired=%d overdue=%d failed_pending=%d pruned_events=%d",
		stats.Expired, stats.OverdueExpired, stats.FailedPending, stats.PrunedEvents)
}
