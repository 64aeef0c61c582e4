package pipeline

import (
	"sync/atomic"
	"time"
)

// Metrics holds the pipeline counters surfaced on /stats. Updated from the
// producer and consumer loops, read by the ops handlers.
type Metrics struct {
	EntitiesFetched    atomic.Int64
	EntitiesForwarded  atomic.Int64
	EntitiesSuppressed atomic.Int64
	EntitiesSkipped    atomic.Int64
	PublishFailures    atomic.Int64
	MessagesConsumed   atomic.Int64
	RecordsWritten     atomic.Int64
	BatchesFailed      atomic.Int64
	CyclesCompleted    atomic.Int64

	lastCycleNanos atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	m.lastCycleNanos.Store(int64(d))
	m.CyclesCompleted.Add(1)
}

func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"entities_fetched":    m.EntitiesFetched.Load(),
		"entities_forwarded":  m.EntitiesForwarded.Load(),
		"entities_suppressed": m.EntitiesSuppressed.Load(),
		"entities_skipped":    m.EntitiesSkipped.Load(),
		"publish_failures":    m.PublishFailures.Load(),
		"messages_consumed":   m.MessagesConsumed.Load(),
		"records_written":     m.RecordsWritten.Load(),
		"batches_failed":      m.BatchesFailed.Load(),
		"cycles_completed":    m.CyclesCompleted.Load(),
		"last_cycle":          time.Duration(m.lastCycleNanos.Load()).String(),
	}
}
