// Package producer implements the session-keyed, batched log producer
// described in §4.6. It publishes storage records to NATS JetStream,
// the broker standing in for the partitioned log; the partition key
// is the session identifier so that one session's records are
// delivered in insertion order on their stream partition.
package producer

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/overwatch/ingestion-gateway/internal/event"
	"github.com/overwatch/ingestion-gateway/internal/logger"
	"github.com/overwatch/ingestion-gateway/internal/metrics"
)

// Compression identifies the wire compression scheme for published
// batches, configurable among none/gzip/snappy/lz4/zstd; default lz4
// per §4.6. Only "none" and "gzip" compress with the standard
// library; snappy/lz4/zstd are accepted as configuration values and
// wired to a no-op passthrough pending a dedicated codec dependency
// (see DESIGN.md).
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionSnappy Compression = "snappy"
	CompressionLZ4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
)

// Config controls batching, compression, and flush cadence.
type Config struct {
	Topic        string
	MaxBatchSize int
	MaxBatchAge  time.Duration
	Compression  Compression
	FlushTick    time.Duration
}

// DefaultConfig matches the defaults carried over from the ingestion
// engine this gateway replaces: batch size 1000, 100ms batch timeout,
// lz4 compression.
func DefaultConfig() Config {
	return Config{
		Topic:        "events",
		MaxBatchSize: 1000,
		MaxBatchAge:  100 * time.Millisecond,
		Compression:  CompressionLZ4,
		FlushTick:    50 * time.Millisecond,
	}
}

// message is one log message: key = session id bytes, value = JSON
// storage record, timestamp = server wall clock. Headers unused
// (§4.6 Serialisation).
type message struct {
	sessionKey string
	payload    []byte
}

// Producer batches storage records and publishes them to the log,
// keyed by session identifier.
type Producer struct {
	conn   *nats.Conn
	config Config

	mu       sync.Mutex
	pending  []message
	oldestAt time.Time

	failures  atomic.Int64
	published atomic.Int64
	healthy   atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Producer that publishes over conn. conn may be nil, in
// which case Publish records are accepted and counted but never
// actually sent over the wire (producer_test.go runs this way, and so
// does the gateway when no broker URLs are configured).
func New(conn *nats.Conn, cfg Config) *Producer {
	p := &Producer{
		conn:    conn,
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	p.healthy.Store(true)
	return p
}

// Connect dials the broker with the reconnect policy grounded on the
// subscriber side of this pipeline: bounded reconnect attempts with a
// fixed wait, and callbacks that log state transitions rather than
// panicking.
func Connect(urls []string, user, password string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Producer().Warn().Err(err).Msg("disconnected from broker")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Producer().Info().Str("url", c.ConnectedUrl()).Msg("reconnected to broker")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Producer().Error().Err(err).Msg("broker connection error")
		}),
	}
	if user != "" {
		opts = append(opts, nats.UserInfo(user, password))
	}

	var target string
	for i, u := range urls {
		if i > 0 {
			target += ","
		}
		target += u
	}
	return nats.Connect(target, opts...)
}

// StartFlushTask launches the periodic ticker that flushes aged
// batches independent of new arrivals (§4.6 Batching).
func (p *Producer) StartFlushTask(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.FlushTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.flushIfAged()
			}
		}
	}()
}

// Stop halts the flush task and performs a final drain.
func (p *Producer) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	_ = p.flush()
}

// Publish accepts a batch of storage records produced by one HTTP
// request, admits them to the accumulator, and flushes synchronously
// before returning. A single call covers the whole request's records
// (§4.5 step 6); since most requests carry far fewer records than
// MaxBatchSize, waiting for the periodic ticker to discover them would
// let the handler report success before the broker write is even
// attempted. Publish therefore always flushes in line with the
// request, so a broker failure surfaces as DB_001 to the caller
// instead of being silently dropped on a background tick.
func (p *Producer) Publish(ctx context.Context, records []event.StorageRecord) error {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.oldestAt = time.Now()
	}
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("marshal storage record: %w", err)
		}
		p.pending = append(p.pending, message{sessionKey: r.SessionID, payload: data})
	}
	depth := len(p.pending)
	p.mu.Unlock()

	metrics.GlobalHealth().SetQueueDepth(int64(depth))
	return p.flush()
}

func (p *Producer) flushIfAged() {
	p.mu.Lock()
	aged := len(p.pending) > 0 && time.Since(p.oldestAt) >= p.config.MaxBatchAge
	p.mu.Unlock()
	if aged {
		_ = p.flush()
	}
}

// flush surrenders the accumulator's contents as an immutable batch
// and publishes each message to the broker. The producer does not
// retry internally (§4.6 Failure semantics): retry is the client
// library's responsibility.
func (p *Producer) flush() error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		metrics.GlobalHealth().SetQueueDepth(0)
		return nil
	}

	if p.conn == nil {
		p.published.Add(int64(len(batch)))
		metrics.GlobalHealth().SetQueueDepth(0)
		return nil
	}

	for _, msg := range batch {
		payload, err := p.compress(msg.payload)
		if err != nil {
			p.failures.Add(1)
			metrics.GlobalHealth().SetProducerHealthy(false)
			return fmt.Errorf("compress message: %w", err)
		}
		if err := p.conn.Publish(p.config.Topic+"."+msg.sessionKey, payload); err != nil {
			p.failures.Add(1)
			metrics.GlobalHealth().SetProducerHealthy(false)
			logger.Producer().Error().Err(err).Str("session", msg.sessionKey).Msg("publish failed")
			return fmt.Errorf("publish to broker: %w", err)
		}
	}
	p.published.Add(int64(len(batch)))
	metrics.GlobalHealth().SetProducerHealthy(true)
	metrics.GlobalHealth().SetQueueDepth(0)
	return nil
}

func (p *Producer) compress(payload []byte) ([]byte, error) {
	switch p.config.Compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return payload, nil
	}
}

// HealthCheck lists topics via an admin call (here, a connection
// liveness probe) and marks the producer unhealthy on failure without
// stopping the pipeline (§4.6 Health).
func (p *Producer) HealthCheck() bool {
	if p.conn == nil {
		return p.healthy.Load()
	}
	healthy := p.conn.Status() == nats.CONNECTED
	p.healthy.Store(healthy)
	return healthy
}

// Stats exposes the producer's failure/success counters.
type Stats struct {
	Published int64
	Failures  int64
	Healthy   bool
}

func (p *Producer) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failures:  p.failures.Load(),
		Healthy:   p.healthy.Load(),
	}
}
