// Package consumer implements the log consumer + router described in
// §4.7: a single-partition-at-a-time pull loop with at-least-once
// semantics, enrichment, per-event-type routing, and retry with
// linear backoff.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/overwatch/ingestion-gateway/internal/enrich"
	"github.com/overwatch/ingestion-gateway/internal/event"
	"github.com/overwatch/ingestion-gateway/internal/logger"
	"github.com/overwatch/ingestion-gateway/internal/metrics"
	"github.com/overwatch/ingestion-gateway/internal/store"
)

// State names the consumer's connection/processing state machine
// (§4.7). It is exposed for health reporting and tests; the loop
// itself transitions through these states implicitly via its control
// flow rather than through an explicit switch, matching the linear
// fetch -> process -> commit shape of the original worker.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateFetching     State = "fetching"
	StateProcessing   State = "processing"
	StateCommitting   State = "committing"
	StateError        State = "error"
)

// Config mirrors the defaults of the worker this consumer replaces:
// 3 retries, 100ms linear backoff, skip-on-failure enabled.
type Config struct {
	StreamName     string
	Subject        string
	DurableName    string
	BatchSize      int
	BatchTimeout   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	SkipOnFailure  bool
	ReconnectPause time.Duration
}

// DefaultConfig returns the ConsumerWorkerConfig defaults carried over
// from the worker this consumer replaces.
func DefaultConfig() Config {
	return Config{
		StreamName:     "EVENTS",
		Subject:        "events.>",
		DurableName:    "overwatch-consumer",
		BatchSize:      500,
		BatchTimeout:   1 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   100 * time.Millisecond,
		SkipOnFailure:  true,
		ReconnectPause: 1 * time.Second,
	}
}

// Consumer pulls batches from the broker, enriches and routes them,
// and inserts into the analytics store sink.
type Consumer struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	sink   store.Sink
	config Config

	sub *nats.Subscription

	state   atomic.Value // State
	offset  atomic.Int64
	skipped atomic.Int64
	errored atomic.Int64
}

// New builds a Consumer. conn may be nil, in which case connect opens
// no subscription, fetchBatch returns no records, and Run loops without
// processing anything until ctx is cancelled (used in tests that
// exercise processBatch directly).
func New(conn *nats.Conn, sink store.Sink, cfg Config) *Consumer {
	c := &Consumer{conn: conn, sink: sink, config: cfg}
	c.state.Store(StateDisconnected)
	return c
}

func (c *Consumer) setState(s State) { c.state.Store(s) }

// State reports the consumer's current state for health reporting.
func (c *Consumer) State() State { return c.state.Load().(State) }

// Run is the main loop: fetch, process, commit, repeat, reconnecting
// after a 1-second pause on fatal I/O failure (§4.7's state machine).
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	if err := c.connect(); err != nil {
		metrics.GlobalHealth().SetConsumerHealthy(false)
		return fmt.Errorf("initial connect: %w", err)
	}
	c.setState(StateReady)
	metrics.GlobalHealth().SetConsumerHealthy(true)

	logger.Consumer().Info().
		Str("subject", c.config.Subject).
		Int("batch_size", c.config.BatchSize).
		Msg("consumer starting")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		count, err := c.processBatch(ctx)
		if err != nil {
			c.setState(StateError)
			c.errored.Add(1)
			metrics.GlobalHealth().SetConsumerHealthy(false)
			logger.Consumer().Error().Err(err).Msg("batch processing error")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.ReconnectPause):
			}

			c.setState(StateConnecting)
			if err := c.resetConnection(); err != nil {
				logger.Consumer().Error().Err(err).Msg("reconnect failed")
				continue
			}
			c.setState(StateReady)
			metrics.GlobalHealth().SetConsumerHealthy(true)
			continue
		}
		if count > 0 {
			logger.Consumer().Debug().Int("count", count).Msg("processed batch")
		}
	}
}

// processBatch runs one fetch -> enrich/route -> insert -> commit
// cycle.
func (c *Consumer) processBatch(ctx context.Context) (int, error) {
	c.setState(StateFetching)
	records, lastOffset, err := c.fetchBatch(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		c.setState(StateReady)
		return 0, nil
	}

	c.setState(StateProcessing)
	for i := range records {
		enrich.Enrich(&records[i])
	}

	if err := c.insertWithRetry(ctx, records); err != nil {
		metrics.GlobalHealth().SetStoreHealthy(false)
		if c.config.SkipOnFailure {
			logger.Consumer().Warn().Err(err).Msg("skipping failed batch, committing offset anyway")
			c.skipped.Add(int64(len(records)))
			c.commit(lastOffset)
			c.setState(StateReady)
			return 0, nil
		}
		return 0, err
	}
	metrics.GlobalHealth().SetStoreHealthy(true)

	c.setState(StateCommitting)
	c.commit(lastOffset)
	c.setState(StateReady)
	return len(records), nil
}

// fetchBatch requests the next records from the durable pull
// subscription, bounded by BatchSize and BatchTimeout; the returned
// offset is the highest stream sequence among the decoded records.
// Records whose bodies fail to deserialise are logged and counted but
// do not block the batch (§4.7 Fetch).
func (c *Consumer) fetchBatch(ctx context.Context) ([]event.StorageRecord, int64, error) {
	if c.sub == nil {
		return nil, c.offset.Load(), nil
	}

	msgs, err := c.sub.Fetch(c.config.BatchSize, nats.MaxWait(c.config.BatchTimeout))
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, c.offset.Load(), nil
		}
		return nil, 0, fmt.Errorf("fetch from broker: %w", err)
	}

	records := make([]event.StorageRecord, 0, len(msgs))
	var maxOffset int64
	for _, m := range msgs {
		var r event.StorageRecord
		if err := json.Unmarshal(m.Data, &r); err != nil {
			logger.Consumer().Warn().Err(err).Msg("dropping undeserializable record")
			metrics.Global().ConsumeErrors.Add(1)
			continue
		}
		records = append(records, r)

		if meta, err := m.Metadata(); err == nil {
			if off := int64(meta.Sequence.Stream); off > maxOffset {
				maxOffset = off
			}
		}
		_ = m.Ack()
	}

	return records, maxOffset, nil
}

// insertWithRetry inserts a routed batch with linear backoff:
// retryBackoff * attempt, up to MaxRetries.
func (c *Consumer) insertWithRetry(ctx context.Context, records []event.StorageRecord) error {
	routed := store.Route(records)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(attempt)
			logger.Consumer().Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying insert")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.insertRouted(ctx, routed)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Consumer) insertRouted(ctx context.Context, routed store.RoutedBatch) error {
	for table, group := range routed {
		if err := c.sink.InsertBatch(ctx, table, group); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

// commit advances the in-process offset to max(record offset)+1. Per
// OQ4, durable commit to the broker's consumer-group facility is a
// follow-up; in-process advancement suffices for this gateway's
// at-least-once guarantee under the assumption that the process is
// not restarted mid-batch.
func (c *Consumer) commit(lastOffset int64) {
	if lastOffset+1 > c.offset.Load() {
		c.offset.Store(lastOffset + 1)
	}
}

// connect acquires a JetStream context, ensures the durable stream
// backing Subject exists, and opens a pull-based durable subscription
// on it. The consumer's Fetch-based batch loop requires a subscription
// created through PullSubscribe; a plain core-NATS SubscribeSync
// subscription does not support Fetch.
func (c *Consumer) connect() error {
	if c.conn == nil {
		return nil
	}

	js, err := c.conn.JetStream()
	if err != nil {
		return fmt.Errorf("acquire jetstream context: %w", err)
	}
	c.js = js

	if _, err := js.StreamInfo(c.config.StreamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     c.config.StreamName,
			Subjects: []string{c.config.Subject},
		}); err != nil {
			return fmt.Errorf("ensure stream %s: %w", c.config.StreamName, err)
		}
	}

	sub, err := js.PullSubscribe(c.config.Subject, c.config.DurableName)
	if err != nil {
		return fmt.Errorf("pull subscribe to %s: %w", c.config.Subject, err)
	}
	c.sub = sub
	return nil
}

// resetConnection drops and rebuilds the subscription on fatal I/O
// failure (§4.7: "any step -> Error -> Disconnected... the connection
// is dropped and rebuilt").
func (c *Consumer) resetConnection() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	return c.connect()
}

// Stats exposes the consumer's counters for health/metrics reporting.
type Stats struct {
	Offset  int64
	Skipped int64
	Errored int64
	State   State
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Offset:  c.offset.Load(),
		Skipped: c.skipped.Load(),
		Errored: c.errored.Load(),
		State:   c.State(),
	}
}
