package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
	"github.com/railwatch/gtfs-rt-pipeline/app/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	entities map[string][]feed.Entity
	errs     map[string]error
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		entities: map[string][]feed.Entity{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]feed.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.entities[url], nil
}

// memoryDedup mirrors the suppression contract with an in-process map.
type memoryDedup struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{expires: map[string]time.Time{}}
}

func (d *memoryDedup) SeenOrMark(ctx context.Context, namespace, id string, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := namespace + ":" + id
	if expiry, ok := d.expires[key]; ok && time.Now().Before(expiry) {
		return true
	}
	d.expires[key] = time.Now().Add(ttl)
	return false
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[string][][]byte{}}
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published[topic] = append(p.published[topic], payload)
	return nil
}

func (p *fakePublisher) Flush(timeout time.Duration) int { return 0 }

func (p *fakePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published[topic])
}

func tripEntity(id string) feed.Entity {
	return feed.Entity{ID: id, TripUpdate: &feed.TripUpdatePayload{
		Trip: feed.TripDescriptor{TripID: id},
	}}
}

func alertEntity(id string) feed.Entity {
	return feed.Entity{ID: id, Alert: &feed.AlertPayload{}}
}

func testSources() []sources.Source {
	return []sources.Source{
		{Name: "tu", URL: "http://tu.example", Family: feed.FamilyTripUpdate, Topic: "topic-tu"},
		{Name: "sa", URL: "http://sa.example", Family: feed.FamilyServiceAlert, Topic: "topic-sa"},
	}
}

func TestProducerCycleForwardsNewEntities(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{tripEntity("T1"), tripEntity("T2")}
	fetcher.entities["http://sa.example"] = []feed.Entity{alertEntity("A1")}

	publisher := newFakePublisher()
	metrics := NewMetrics()
	p := NewProducer(fetcher, newMemoryDedup(), publisher, testSources(), time.Hour, time.Minute, metrics)

	p.RunCycle(context.Background())

	assert.Equal(t, 2, publisher.count("topic-tu"))
	assert.Equal(t, 1, publisher.count("topic-sa"))
	assert.Equal(t, int64(3), metrics.EntitiesFetched.Load())
	assert.Equal(t, int64(3), metrics.EntitiesForwarded.Load())
	assert.Equal(t, int64(0), metrics.EntitiesSuppressed.Load())

	// Payloads round-trip as wire entities.
	var e feed.Entity
	require.NoError(t, json.Unmarshal(publisher.published["topic-tu"][0], &e))
	require.NotNil(t, e.TripUpdate)
}

func TestProducerSecondCycleSuppressesRepeats(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{tripEntity("T1"), tripEntity("T2")}
	fetcher.entities["http://sa.example"] = []feed.Entity{alertEntity("A1")}

	publisher := newFakePublisher()
	metrics := NewMetrics()
	p := NewProducer(fetcher, newMemoryDedup(), publisher, testSources(), time.Hour, time.Minute, metrics)

	p.RunCycle(context.Background())
	p.RunCycle(context.Background())

	// An unchanged feed produces nothing new on the second pass.
	assert.Equal(t, 2, publisher.count("topic-tu"))
	assert.Equal(t, 1, publisher.count("topic-sa"))
	assert.Equal(t, int64(3), metrics.EntitiesForwarded.Load())
	assert.Equal(t, int64(3), metrics.EntitiesSuppressed.Load())
}

func TestProducerForwardsAgainAfterTTLExpiry(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{tripEntity("T1")}

	publisher := newFakePublisher()
	srcs := testSources()[:1]
	p := NewProducer(fetcher, newMemoryDedup(), publisher, srcs, 30*time.Millisecond, time.Minute, NewMetrics())

	p.RunCycle(context.Background())
	time.Sleep(50 * time.Millisecond)
	p.RunCycle(context.Background())

	assert.Equal(t, 2, publisher.count("topic-tu"))
}

func TestProducerSourceFailureIsIsolated(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.errs["http://tu.example"] = errors.New("feed unavailable")
	fetcher.entities["http://sa.example"] = []feed.Entity{alertEntity("A1")}

	publisher := newFakePublisher()
	metrics := NewMetrics()
	p := NewProducer(fetcher, newMemoryDedup(), publisher, testSources(), time.Hour, time.Minute, metrics)

	p.RunCycle(context.Background())

	assert.Equal(t, 0, publisher.count("topic-tu"))
	assert.Equal(t, 1, publisher.count("topic-sa"))
	assert.Equal(t, int64(1), metrics.CyclesCompleted.Load())
}

func TestProducerSameIDAcrossFamiliesNotSuppressed(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{tripEntity("X")}
	fetcher.entities["http://sa.example"] = []feed.Entity{alertEntity("X")}

	publisher := newFakePublisher()
	p := NewProducer(fetcher, newMemoryDedup(), publisher, testSources(), time.Hour, time.Minute, NewMetrics())

	p.RunCycle(context.Background())

	// Identical raw ids live in different namespaces.
	assert.Equal(t, 1, publisher.count("topic-tu"))
	assert.Equal(t, 1, publisher.count("topic-sa"))
}

func TestProducerSkipsEntitiesFromWrongFamily(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{
		tripEntity("T1"),
		alertEntity("A1"), // stray alert on the trip-update feed
	}

	dedup := newMemoryDedup()
	publisher := newFakePublisher()
	metrics := NewMetrics()
	p := NewProducer(fetcher, dedup, publisher, testSources()[:1], time.Hour, time.Minute, metrics)

	p.RunCycle(context.Background())

	assert.Equal(t, 1, publisher.count("topic-tu"))
	assert.Equal(t, int64(1), metrics.EntitiesSkipped.Load())

	// The stray entity was never marked, so it is not suppressed when its
	// own family's source reports it.
	assert.False(t, dedup.SeenOrMark(context.Background(), feed.FamilyServiceAlert, "A1", time.Hour))
}

func TestProducerCountsPublishFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.entities["http://tu.example"] = []feed.Entity{tripEntity("T1")}

	publisher := newFakePublisher()
	publisher.err = errors.New("broker down")
	metrics := NewMetrics()
	p := NewProducer(fetcher, newMemoryDedup(), publisher, testSources()[:1], time.Hour, time.Minute, metrics)

	p.RunCycle(context.Background())

	assert.Equal(t, int64(1), metrics.PublishFailures.Load())
	assert.Equal(t, int64(0), metrics.EntitiesForwarded.Load())
}
