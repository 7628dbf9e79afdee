package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/kafka"
)

// Publisher writes a batch of events to the analytics topic.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector buffers events and publishes them in batches, flushing when a
// batch fills or the flush interval passes. Track never blocks: events that
// arrive while the buffer is full are dropped and counted.
type Collector struct {
	publisher     Publisher
	events        chan Event
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	published     atomic.Int64
	logger        *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewCollector(p Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     p,
		events:        make(chan Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.events),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				c.flush(flushCtx, batch)
				cancel()
				return
			}
			batch = append(batch, kafka.Event{Key: e.Key(), Value: e})
			if len(batch) >= c.batchSize {
				c.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.Publish(ctx, batch...); err != nil {
		c.dropped.Add(int64(len(batch)))
		c.logger.Error("analytics batch dropped", "events", len(batch), "error", err)
		return
	}
	c.published.Add(int64(len(batch)))
	c.logger.Debug("analytics batch published", "events", len(batch))
}

func (c *Collector) Track(e Event) {
	select {
	case c.events <- e:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Close flushes buffered events and stops the loop. Track must not be called
// after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.events)
		<-c.done
	})
}

func (c *Collector) Published() int64 { return c.published.Load() }
func (c *Collector) Dropped() int64   { return c.dropped.Load() }
