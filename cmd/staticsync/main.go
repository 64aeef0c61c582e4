package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/railwatch/gtfs-rt-pipeline/app/cfg"
	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/static"
)

// One-shot job: refresh the GTFS reference tables from the static dataset.
// Scheduling (cron or similar) is a deployment concern.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if appCfg == nil {
		return
	}
	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if appCfg.StaticURL == "" {
		log.Fatal("STATIC_URL is required for staticsync")
	}

	log.Println("Connecting to database...")
	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	log.Printf("Refreshing static dataset from %s...", appCfg.StaticURL)
	written, err := static.Refresh(ctx, appCfg.StaticURL, database.NewBatchWriter(db))
	if err != nil {
		log.Fatal("Static refresh failed:", err)
	}

	log.Printf("Static refresh complete, %d rows written", written)
}
