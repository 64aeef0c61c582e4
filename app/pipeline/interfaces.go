package pipeline

import (
	"context"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
)

// Fetcher retrieves one decoded feed snapshot. An error means the feed was
// unavailable this round and the cycle proceeds with zero entities.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Entity, error)
}

// Deduper reports whether an entity id was already forwarded within its
// TTL window, marking it as forwarded otherwise. Implementations fail
// open: when the backing store is unreachable they answer false.
type Deduper interface {
	SeenOrMark(ctx context.Context, namespace, id string, ttl time.Duration) bool
}

// Publisher stages records on the message bus.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Flush(timeout time.Duration) int
}

// MessageSource pulls bounded batches for one feed family. Commit is only
// called after the cycle's write transaction succeeded.
type MessageSource interface {
	PollBatch(max int, timeout time.Duration) ([][]byte, error)
	Commit() error
}

// BatchWriter persists a cycle's record batches in one transaction.
type BatchWriter interface {
	WriteBatches(ctx context.Context, batches ...database.Batch) (int, error)
}
