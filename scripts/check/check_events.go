// check_events prints the stored safety events and the ones the chronological
// index does not show because an earlier event holds the same timestamp.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cuida-monitor/common/config"
	"cuida-monitor/common/database"
	"cuida-monitor/common/logger"
	"cuida-monitor/internal/models"
	"cuida-monitor/internal/repository"

	"go.uber.org/zap"
)

func main() {
	log, err := logger.NewLogger("info", "console", "check-events")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := &config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "cuida",
		SSLMode:  "disable",
	}
	cfg.LoadFromEnv("DB")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	events, err := repository.NewPostgresEventsRepo(db, log).ListAscending(ctx)
	if err != nil {
		log.Fatal("Failed to list events", zap.Error(err))
	}

	fmt.Printf("%-36s %-12s %-20s %-8s %-24s %-12s\n", "event_id", "key", "time (UTC)", "kind", "location", "device_id")
	fmt.Println(strings.Repeat("=", 116))
	for _, e := range events {
		printEvent(e)
	}

	hidden := hiddenByCollision(events)
	fmt.Printf("\nTotal stored: %d, indexed: %d, hidden by same-second collision: %d\n",
		len(events), len(events)-len(hidden), len(hidden))
	for _, e := range hidden {
		printEvent(e)
	}
}

func printEvent(e models.Event) {
	fmt.Printf("%-36s %-12d %-20s %-8s %-24s %-12s\n",
		e.EventID,
		e.Timestamp,
		time.Unix(e.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"),
		e.Kind,
		fmt.Sprintf("%.5f,%.5f", e.Latitude, e.Longitude),
		e.DeviceID,
	)
}

// hiddenByCollision returns the events (ascending, store order) that replay
// would drop because an earlier event already used their timestamp.
func hiddenByCollision(events []models.Event) []models.Event {
	seen := make(map[int64]struct{}, len(events))
	var hidden []models.Event
	for _, e := range events {
		if _, ok := seen[e.Timestamp]; ok {
			hidden = append(hidden, e)
			continue
		}
		seen[e.Timestamp] = struct{}{}
	}
	return hidden
}
