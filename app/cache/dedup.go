package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup answers "has this entity id been forwarded within its TTL window?"
// backed by Redis with per-key expiry.
//
// The lookup-and-mark is two separate commands (EXISTS then SET), so two
// concurrent pollers racing on the same id can both observe a miss and
// each forward the entity once. Suppression is best effort; the idempotent
// upsert downstream absorbs the extra copy.
//
// Every backend failure fails open: the entity is treated as unseen and
// forwarded, and the connection is reestablished lazily on a later call.
// An unreachable Redis never blocks or crashes the pipeline.
type Dedup struct {
	addr string

	mu     sync.Mutex
	client *redis.Client
}

func NewDedup(addr string) *Dedup {
	d := &Dedup{addr: addr}
	if client := d.getClient(); client == nil {
		slog.Warn("Dedup cache unavailable at startup, continuing without suppression", "addr", addr)
	}
	return d
}

// SeenOrMark returns true when (namespace, id) is already marked within a
// live TTL window. Otherwise it marks the pair with expiry now+ttl and
// returns false.
func (d *Dedup) SeenOrMark(ctx context.Context, namespace, id string, ttl time.Duration) bool {
	client := d.getClient()
	if client == nil {
		return false
	}

	key := Key(namespace, id)

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		slog.Warn("Dedup cache lookup failed, forwarding entity", "key", key, "error", err)
		d.dropClient()
		return false
	}
	if n > 0 {
		return true
	}

	if err := client.Set(ctx, key, "1", ttl).Err(); err != nil {
		slog.Warn("Dedup cache mark failed, forwarding entity", "key", key, "error", err)
		d.dropClient()
	}
	return false
}

// Key builds the storage key. The namespace keeps trip update ids and
// alert ids from colliding when the raw id strings happen to match.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

func (d *Dedup) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// getClient returns the live client, reconnecting when a previous failure
// dropped it. Returns nil when the backend is unreachable.
func (d *Dedup) getClient() *redis.Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client
	}

	client := redis.NewClient(&redis.Options{
		Addr:         d.addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Dedup cache connection failed", "addr", d.addr, "error", err)
		client.Close()
		return nil
	}

	slog.Info("Connected to dedup cache", "addr", d.addr)
	d.client = client
	return d.client
}

func (d *Dedup) dropClient() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
}
