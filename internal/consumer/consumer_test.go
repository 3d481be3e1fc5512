package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overwatch/ingestion-gateway/internal/event"
)

type fakeSink struct {
	failUntilAttempt int
	calls            int
	inserted         map[string][]event.StorageRecord
}

func newFakeSink() *fakeSink {
	return &fakeSink{inserted: make(map[string][]event.StorageRecord)}
}

func (f *fakeSink) InsertBatch(_ context.Context, table string, records []event.StorageRecord) error {
	f.calls++
	if f.calls <= f.failUntilAttempt {
		return errors.New("transient store failure")
	}
	f.inserted[table] = append(f.inserted[table], records...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func TestConsumer_InsertWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	sink := newFakeSink()
	sink.failUntilAttempt = 1
	c := New(nil, sink, Config{MaxRetries: 3, RetryBackoff: 0})

	records := []event.StorageRecord{{EventID: "e1", EventType: event.TypeClick}}
	err := c.insertWithRetry(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, sink.inserted["overwatch.clicks"], 1)
}

func TestConsumer_InsertWithRetryExhaustsAndFails(t *testing.T) {
	sink := newFakeSink()
	sink.failUntilAttempt = 100
	c := New(nil, sink, Config{MaxRetries: 2, RetryBackoff: 0})

	records := []event.StorageRecord{{EventID: "e1", EventType: event.TypeClick}}
	err := c.insertWithRetry(context.Background(), records)
	assert.Error(t, err)
	assert.Equal(t, 3, sink.calls, "one initial attempt plus MaxRetries retries")
}

func TestConsumer_CommitAdvancesOffsetMonotonically(t *testing.T) {
	c := New(nil, newFakeSink(), DefaultConfig())
	c.commit(5)
	assert.Equal(t, int64(6), c.offset.Load())

	c.commit(2)
	assert.Equal(t, int64(6), c.offset.Load(), "commit must never move the offset backwards")

	c.commit(10)
	assert.Equal(t, int64(11), c.offset.Load())
}

func TestConsumer_StateTransitionsThroughProcessBatch(t *testing.T) {
	c := New(nil, newFakeSink(), DefaultConfig())
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.connect())
	c.setState(StateReady)
	count, err := c.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nil subscription yields no records")
	assert.Equal(t, StateReady, c.State())
}

func TestConsumer_InsertWithRetryReportsFailureEvenWithSkipOnFailure(t *testing.T) {
	sink := newFakeSink()
	sink.failUntilAttempt = 100
	c := New(nil, sink, Config{MaxRetries: 0, RetryBackoff: 0, SkipOnFailure: true})

	err := c.insertWithRetry(context.Background(), []event.StorageRecord{{EventID: "e1"}})
	assert.Error(t, err, "insertWithRetry itself still reports the failure")
}
