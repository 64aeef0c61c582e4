package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/sources"
)

// The two feed families are unrelated, so their fetch cycles run in
// parallel. More workers than families buys nothing.
const producerWorkers = 2

// Producer runs the publish side of the pipeline: fetch a feed snapshot,
// drop entities already forwarded within the dedup window, and stage the
// rest on the bus. One Producer handles all configured feed sources.
type Producer struct {
	fetcher   Fetcher
	dedup     Deduper
	publisher Publisher
	sources   []sources.Source
	ttl       time.Duration
	metrics   *Metrics
	interval  time.Duration
}

func NewProducer(fetcher Fetcher, dedup Deduper, publisher Publisher,
	srcs []sources.Source, ttl, interval time.Duration, metrics *Metrics) *Producer {
	return &Producer{
		fetcher:   fetcher,
		dedup:     dedup,
		publisher: publisher,
		sources:   srcs,
		ttl:       ttl,
		metrics:   metrics,
		interval:  interval,
	}
}

// Run executes cycles until the context is canceled.
func (p *Producer) Run(ctx context.Context) {
	for {
		p.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// RunCycle processes every configured source once, the families in
// parallel on a bounded worker pool. A failing source is logged and does
// not block the other one; all errors are reported after both complete.
func (p *Producer) RunCycle(ctx context.Context) {
	start := time.Now()

	type job struct {
		idx int
		src sources.Source
	}

	results := make([]error, len(p.sources))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < producerWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = p.processSource(ctx, j.src)
			}
		}()
	}

	for i, src := range p.sources {
		jobs <- job{idx: i, src: src}
	}
	close(jobs)
	wg.Wait()

	for i, err := range results {
		if err != nil {
			slog.Error("Feed source cycle failed", "source", p.sources[i].Name, "error", err)
		}
	}

	if unsent := p.publisher.Flush(10 * time.Second); unsent > 0 {
		slog.Warn("Publisher flush timed out", "unsent", unsent)
	}

	p.metrics.ObserveCycle(time.Since(start))
}

// processSource fetches one snapshot and forwards the entities not seen
// within the dedup window. Fetch failure means zero entities this round.
func (p *Producer) processSource(ctx context.Context, src sources.Source) error {
	entities, err := p.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return err
	}

	p.metrics.EntitiesFetched.Add(int64(len(entities)))

	forwarded := 0
	suppressed := 0
	for _, entity := range entities {
		// A trip-update feed occasionally carries stray alert entities and
		// vice versa; forwarding them would poison the other family's topic.
		if entity.Family() != src.Family {
			slog.Warn("Entity family does not match source, skipping",
				"source", src.Name, "id", entity.ID, "family", entity.Family())
			p.metrics.EntitiesSkipped.Add(1)
			continue
		}

		if p.dedup.SeenOrMark(ctx, src.Family, entity.ID, p.ttl) {
			suppressed++
			continue
		}

		payload, err := json.Marshal(entity)
		if err != nil {
			slog.Warn("Failed to serialize entity", "source", src.Name, "id", entity.ID, "error", err)
			p.metrics.EntitiesSkipped.Add(1)
			continue
		}

		if err := p.publisher.Publish(src.Topic, payload); err != nil {
			slog.Warn("Failed to publish entity", "source", src.Name, "id", entity.ID, "error", err)
			p.metrics.PublishFailures.Add(1)
			continue
		}
		forwarded++
	}

	p.metrics.EntitiesForwarded.Add(int64(forwarded))
	p.metrics.EntitiesSuppressed.Add(int64(suppressed))

	slog.Info("Feed source cycle complete", "source", src.Name,
		"fetched", len(entities), "forwarded", forwarded, "suppressed", suppressed)
	return nil
}
