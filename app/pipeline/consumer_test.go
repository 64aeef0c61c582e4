package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

type fakeSource struct {
	payloads [][]byte
	pollErr  error
	polls    int
	commits  int
}

func (s *fakeSource) PollBatch(max int, timeout time.Duration) ([][]byte, error) {
	s.polls++
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	batch := s.payloads
	s.payloads = nil
	return batch, nil
}

func (s *fakeSource) Commit() error {
	s.commits++
	return nil
}

type fakeWriter struct {
	calls [][]database.Batch
	err   error
}

func (w *fakeWriter) WriteBatches(ctx context.Context, batches ...database.Batch) (int, error) {
	w.calls = append(w.calls, batches)
	if w.err != nil {
		return 0, w.err
	}
	total := 0
	for _, b := range batches {
		total += len(b.Rows)
	}
	return total, nil
}

func marshal(t *testing.T, e feed.Entity) []byte {
	t.Helper()
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	return payload
}

func consumerOpts() ConsumerOptions {
	return ConsumerOptions{PollMax: 100, PollTimeout: time.Millisecond}
}

func TestConsumerCycleWritesOneTransaction(t *testing.T) {
	tuSource := &fakeSource{payloads: [][]byte{
		marshal(t, feed.Entity{ID: "T1", TripUpdate: &feed.TripUpdatePayload{
			Trip: feed.TripDescriptor{TripID: "T1"},
			StopTimeUpdates: []feed.StopTimeEvent{
				{StopID: "S1", Departure: &feed.TimeDelay{Time: i64(1700000000)}},
				{StopID: "S2", Departure: &feed.TimeDelay{Time: i64(1700000300)}},
			},
		}}),
		marshal(t, feed.Entity{ID: "T2", TripUpdate: &feed.TripUpdatePayload{
			Trip: feed.TripDescriptor{TripID: "T2"},
		}}),
	}}
	saSource := &fakeSource{payloads: [][]byte{
		marshal(t, feed.Entity{ID: "A1", Alert: &feed.AlertPayload{
			InformedEntities: []feed.InformedEntity{
				{Trip: &feed.TripDescriptor{TripID: "T1"}},
				{Trip: &feed.TripDescriptor{TripID: "T2"}},
			},
		}}),
	}}

	writer := &fakeWriter{}
	metrics := NewMetrics()
	c := NewConsumer(tuSource, saSource, writer, consumerOpts(), metrics)

	outcome := c.RunCycle(context.Background())
	assert.Equal(t, CycleWrote, outcome)

	// All four tables go through one writer call, parents first.
	require.Len(t, writer.calls, 1)
	batches := writer.calls[0]
	require.Len(t, batches, 4)
	assert.Equal(t, "trip_updates", batches[0].Table)
	assert.Equal(t, "stop_time_updates", batches[1].Table)
	assert.Equal(t, "alerts", batches[2].Table)
	assert.Equal(t, "alert_entities", batches[3].Table)

	assert.Len(t, batches[0].Rows, 2)
	assert.Len(t, batches[1].Rows, 2)
	assert.Len(t, batches[2].Rows, 1)
	assert.Len(t, batches[3].Rows, 2)

	assert.Equal(t, 1, tuSource.commits)
	assert.Equal(t, 1, saSource.commits)
	assert.Equal(t, int64(3), metrics.MessagesConsumed.Load())
	assert.Equal(t, int64(7), metrics.RecordsWritten.Load())
}

func TestConsumerCycleIdleOnEmptyPolls(t *testing.T) {
	writer := &fakeWriter{}
	c := NewConsumer(&fakeSource{}, &fakeSource{}, writer, consumerOpts(), NewMetrics())

	outcome := c.RunCycle(context.Background())

	assert.Equal(t, CycleIdle, outcome)
	assert.Empty(t, writer.calls)
}

func TestConsumerCyclePollError(t *testing.T) {
	tuSource := &fakeSource{pollErr: errors.New("broker gone")}
	writer := &fakeWriter{}
	c := NewConsumer(tuSource, &fakeSource{}, writer, consumerOpts(), NewMetrics())

	outcome := c.RunCycle(context.Background())

	assert.Equal(t, CyclePollError, outcome)
	assert.Empty(t, writer.calls)
}

func TestConsumerWriteFailureSkipsOffsetCommit(t *testing.T) {
	tuSource := &fakeSource{payloads: [][]byte{
		marshal(t, feed.Entity{ID: "T1", TripUpdate: &feed.TripUpdatePayload{
			Trip: feed.TripDescriptor{TripID: "T1"},
		}}),
	}}
	saSource := &fakeSource{}

	writer := &fakeWriter{err: errors.New("database down")}
	metrics := NewMetrics()
	c := NewConsumer(tuSource, saSource, writer, consumerOpts(), metrics)

	outcome := c.RunCycle(context.Background())

	assert.Equal(t, CycleWriteError, outcome)
	assert.Equal(t, 0, tuSource.commits)
	assert.Equal(t, 0, saSource.commits)
	assert.Equal(t, int64(1), metrics.BatchesFailed.Load())
	assert.Equal(t, int64(0), metrics.RecordsWritten.Load())
}

func TestConsumerSkipsUndecodableMessages(t *testing.T) {
	tuSource := &fakeSource{payloads: [][]byte{
		[]byte("{not json"),
		marshal(t, feed.Entity{ID: "T1", TripUpdate: &feed.TripUpdatePayload{
			Trip: feed.TripDescriptor{TripID: "T1"},
		}}),
	}}

	writer := &fakeWriter{}
	metrics := NewMetrics()
	c := NewConsumer(tuSource, &fakeSource{}, writer, consumerOpts(), metrics)

	outcome := c.RunCycle(context.Background())

	assert.Equal(t, CycleWrote, outcome)
	require.Len(t, writer.calls, 1)
	assert.Len(t, writer.calls[0][0].Rows, 1)
	assert.Equal(t, int64(1), metrics.EntitiesSkipped.Load())
	assert.Equal(t, 1, tuSource.commits)
}

func TestConsumerFallbackFeedTimestamp(t *testing.T) {
	before := time.Now().UTC()
	tuSource := &fakeSource{payloads: [][]byte{
		marshal(t, feed.Entity{ID: "T1", TripUpdate: &feed.TripUpdatePayload{
			Trip: feed.TripDescriptor{TripID: "T1"},
		}}),
	}}

	writer := &fakeWriter{}
	c := NewConsumer(tuSource, &fakeSource{}, writer, consumerOpts(), NewMetrics())
	c.RunCycle(context.Background())

	require.Len(t, writer.calls, 1)
	row := writer.calls[0][0].Rows[0]

	// feed_timestamp is the first trip_updates column.
	ts, ok := row[0].(time.Time)
	require.True(t, ok)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(time.Now().UTC()))
}
