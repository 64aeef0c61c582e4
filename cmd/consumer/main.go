package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/api"
	"github.com/railwatch/gtfs-rt-pipeline/app/bus"
	"github.com/railwatch/gtfs-rt-pipeline/app/cfg"
	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/pipeline"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}
	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	log.Println("Starting GTFS-RT consumer...")

	log.Println("Connecting to database...")
	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Println("Connected to database successfully")

	if err := database.EnsureSchema(db); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	tripSource, err := bus.NewConsumer(appCfg.KafkaBrokers, appCfg.ConsumerGroup, appCfg.TripUpdateTopic)
	if err != nil {
		log.Fatal("Failed to create trip update consumer:", err)
	}
	defer tripSource.Close()

	alertSource, err := bus.NewConsumer(appCfg.KafkaBrokers, appCfg.ConsumerGroup, appCfg.AlertTopic)
	if err != nil {
		log.Fatal("Failed to create service alert consumer:", err)
	}
	defer alertSource.Close()

	metrics := pipeline.NewMetrics()
	writer := database.NewBatchWriter(db)

	consumer := pipeline.NewConsumer(tripSource, alertSource, writer, pipeline.ConsumerOptions{
		PollMax:         appCfg.PollMax,
		PollTimeout:     time.Duration(appCfg.PollTimeoutSec) * time.Second,
		IdleSleep:       time.Duration(appCfg.IdleSleepSec) * time.Second,
		PacingSleep:     time.Duration(appCfg.PacingSleepSec) * time.Second,
		PollErrorSleep:  time.Duration(appCfg.PollErrorSleepSec) * time.Second,
		WriteErrorSleep: time.Duration(appCfg.WriteErrorSleepSec) * time.Second,
	}, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(consumerDone)
	}()

	// Ops HTTP server
	handler := api.NewHandler(db, metrics)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting ops HTTP server on port %s", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Consumer started, press Ctrl+C to shutdown gracefully...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down gracefully...")
	cancel()

	// The consumer finishes (or rolls back) its in-flight cycle before
	// exiting; no half-committed state is left behind.
	<-consumerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Consumer shutdown complete")
}
