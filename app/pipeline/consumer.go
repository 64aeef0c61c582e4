package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
)

// CycleOutcome classifies one consumer cycle and selects the pacing delay
// before the next poll.
type CycleOutcome int

const (
	CycleIdle CycleOutcome = iota
	CycleWrote
	CyclePollError
	CycleWriteError
)

type ConsumerOptions struct {
	PollMax     int
	PollTimeout time.Duration

	// Sleep after an empty poll, a successful write, a poll error, and a
	// failed write transaction respectively.
	IdleSleep       time.Duration
	PacingSleep     time.Duration
	PollErrorSleep  time.Duration
	WriteErrorSleep time.Duration
}

// Consumer runs the load side of the pipeline: poll a bounded batch per
// family, decompose everything, then issue exactly one multi-table upsert
// transaction per cycle. Offsets are committed only after that transaction
// commits, so a failed write leads to redelivery instead of data loss.
type Consumer struct {
	tripSource  MessageSource
	alertSource MessageSource
	writer      BatchWriter
	metrics     *Metrics
	opts        ConsumerOptions
}

func NewConsumer(tripSource, alertSource MessageSource, writer BatchWriter,
	opts ConsumerOptions, metrics *Metrics) *Consumer {
	return &Consumer{
		tripSource:  tripSource,
		alertSource: alertSource,
		writer:      writer,
		metrics:     metrics,
		opts:        opts,
	}
}

// Run executes cycles until the context is canceled. Any in-flight write
// transaction finishes (or rolls back) before Run returns.
func (c *Consumer) Run(ctx context.Context) {
	for {
		outcome := c.RunCycle(ctx)

		var delay time.Duration
		switch outcome {
		case CycleIdle:
			delay = c.opts.IdleSleep
		case CycleWrote:
			delay = c.opts.PacingSleep
		case CyclePollError:
			delay = c.opts.PollErrorSleep
		case CycleWriteError:
			delay = c.opts.WriteErrorSleep
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// RunCycle is one poll → decompose-all → write-transaction pass.
func (c *Consumer) RunCycle(ctx context.Context) CycleOutcome {
	start := time.Now()
	defer func() { c.metrics.ObserveCycle(time.Since(start)) }()

	tuPayloads, tuErr := c.tripSource.PollBatch(c.opts.PollMax, c.opts.PollTimeout)
	if tuErr != nil {
		slog.Error("Polling trip updates failed", "error", tuErr)
	}
	saPayloads, saErr := c.alertSource.PollBatch(c.opts.PollMax, c.opts.PollTimeout)
	if saErr != nil {
		slog.Error("Polling service alerts failed", "error", saErr)
	}

	if len(tuPayloads) == 0 && len(saPayloads) == 0 {
		if tuErr != nil || saErr != nil {
			return CyclePollError
		}
		return CycleIdle
	}

	c.metrics.MessagesConsumed.Add(int64(len(tuPayloads) + len(saPayloads)))

	// The message's own ingestion time is the feed_timestamp fallback for
	// payloads that carry none.
	now := time.Now().UTC()

	tuEntities, badTU := decodeEntities(tuPayloads)
	saEntities, badSA := decodeEntities(saPayloads)

	trips, stops, skippedTU := feed.DecomposeTripUpdates(tuEntities, now)
	alerts, alertEntities, skippedSA := feed.DecomposeAlerts(saEntities)
	c.metrics.EntitiesSkipped.Add(int64(badTU + badSA + skippedTU + skippedSA))

	// Parent tables precede their children inside the transaction.
	written, err := c.writer.WriteBatches(ctx,
		database.TripUpdateBatch(trips),
		database.StopTimeUpdateBatch(stops),
		database.AlertBatch(alerts),
		database.AlertEntityBatch(alertEntities),
	)
	if err != nil {
		// The whole transaction rolled back; offsets stay uncommitted so
		// the batch is redelivered.
		c.metrics.BatchesFailed.Add(1)
		slog.Error("Write transaction failed, batch will be redelivered", "error", err)
		return CycleWriteError
	}
	c.metrics.RecordsWritten.Add(int64(written))

	c.commitOffsets()

	slog.Info("Consumer cycle complete",
		"trip_updates", len(trips), "stop_time_updates", len(stops),
		"alerts", len(alerts), "alert_entities", len(alertEntities),
		"records_written", written)

	if written == 0 {
		return CycleIdle
	}
	return CycleWrote
}

func (c *Consumer) commitOffsets() {
	if err := c.tripSource.Commit(); err != nil {
		slog.Error("Committing trip update offsets failed", "error", err)
	}
	if err := c.alertSource.Commit(); err != nil {
		slog.Error("Committing service alert offsets failed", "error", err)
	}
}

// decodeEntities unmarshals wire payloads, skipping undecodable ones so a
// single corrupt message never poisons the batch.
func decodeEntities(payloads [][]byte) ([]feed.Entity, int) {
	var entities []feed.Entity
	bad := 0
	for _, payload := range payloads {
		var e feed.Entity
		if err := json.Unmarshal(payload, &e); err != nil {
			slog.Warn("Skipping undecodable message", "error", err)
			bad++
			continue
		}
		entities = append(entities, e)
	}
	return entities, bad
}
