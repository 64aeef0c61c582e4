package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/bus"
	"github.com/railwatch/gtfs-rt-pipeline/app/cache"
	"github.com/railwatch/gtfs-rt-pipeline/app/cfg"
	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
	"github.com/railwatch/gtfs-rt-pipeline/app/pipeline"
	"github.com/railwatch/gtfs-rt-pipeline/app/sources"
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

	log.Println("Starting GTFS-RT producer...")

	// Give Kafka and Redis time to come up after a stack restart.
	if appCfg.StartupDelaySec > 0 {
		log.Printf("Waiting %ds before the first cycle...", appCfg.StartupDelaySec)
		time.Sleep(time.Duration(appCfg.StartupDelaySec) * time.Second)
	}

	log.Printf("Loading feed sources from %s...", appCfg.SourcesDir)
	srcs, err := sources.NewLoader(appCfg.SourcesDir).LoadAll()
	if err != nil {
		log.Fatal("Failed to load feed sources:", err)
	}
	if len(srcs) == 0 {
		log.Fatalf("No feed sources found in %s", appCfg.SourcesDir)
	}
	log.Printf("Loaded %d feed sources", len(srcs))

	dedup := cache.NewDedup(appCfg.RedisAddr)
	defer dedup.Close()

	publisher, err := bus.NewProducer(appCfg.KafkaBrokers)
	if err != nil {
		log.Fatal("Failed to create Kafka producer:", err)
	}
	defer publisher.Close()

	fetcher := feed.NewFetcher(time.Duration(appCfg.FetchTimeoutSec)*time.Second, appCfg.UserAgent)
	metrics := pipeline.NewMetrics()

	producer := pipeline.NewProducer(
		fetcher, dedup, publisher, srcs,
		time.Duration(appCfg.DedupTTLSec)*time.Second,
		time.Duration(appCfg.PollIntervalSec)*time.Second,
		metrics,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	log.Println("Producer started, press Ctrl+C to shutdown gracefully...")
	producer.Run(ctx)

	// Let in-flight deliveries drain before closing.
	publisher.Flush(10 * time.Second)
	log.Println("Producer shutdown complete")
}
