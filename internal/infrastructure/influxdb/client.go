package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

const (
	connectPingLimit = 10 * time.Second
	healthPingLimit  = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records Thing telemetry in InfluxDB v2.
//
// Writes are batched by the non-blocking write API and never wait on the
// network. Rejected batches surface later through SetOnError and the
// Failed counter. All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// mu orders writes before Close; the write API panics once closed.
	mu     sync.RWMutex
	closed atomic.Bool

	onError atomic.Pointer[func(error)]

	queued  atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// Stats counts points handed to the write API, values skipped as not
// aggregatable, and batches the server rejected.
type Stats struct {
	Queued  uint64 `json:"points_queued"`
	Skipped uint64 `json:"values_skipped"`
	Failed  uint64 `json:"batches_failed"`
}

// Connect pings cfg.URL and opens a write API on cfg.Org/cfg.Bucket. The
// ping is bounded by ctx and by a 10 second ceiling.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(ctx, client, connectPingLimit); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions maps batch_size and flush_interval (seconds) onto the
// client options, falling back to the defaults for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, client influxdb2.Client, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// drainErrors runs until the write API is closed.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError sets the callback for rejected batches. It runs on the
// client's error goroutine.
func (c *Client) SetOnError(fn func(err error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// Close flushes buffered points and releases the client. Writes after
// Close are dropped. Safe to call more than once.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, healthPingLimit); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not contact the
// server.
func (c *Client) IsConnected() bool {
	return c.client != nil && !c.closed.Load()
}

// Flush blocks until buffered points are sent.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// write queues p unless the client is closed.
func (c *Client) write(p *write.Point) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.IsConnected() {
		return false
	}
	c.writeAPI.WritePoint(p)
	c.queued.Add(1)
	return true
}

func (c *Client) Stats() Stats {
	return Stats{
		Queued:  c.queued.Load(),
		Skipped: c.skipped.Load(),
		Failed:  c.failed.Load(),
	}
}
