// Package cache stores rendered result pages in Redis, keyed by index build so
// a snapshot swap never serves pages of an older index.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend, satisfied by *redis.Client.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies one page of one query against one index build.
type Key struct {
	BuildID string
	Tokens  []string
	Page    int
	PerPage int
}

// String renders the Redis key. Token order and duplicates do not matter.
func (k Key) String() string {
	toks := slices.Clone(k.Tokens)
	slices.Sort(toks)
	toks = slices.Compact(toks)
	raw := fmt.Sprintf("%s|page=%d|per_page=%d", strings.Join(toks, ","), k.Page, k.PerPage)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.BuildID, sum[:16])
}

// PageCache is a read-through cache of query pages.
type PageCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a PageCache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *PageCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &PageCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("redis-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "page-cache"),
	}
}

// Get returns the cached page for k. Backend failures count as misses.
func (c *PageCache) Get(ctx context.Context, k Key) (*executor.Response, bool) {
	key := k.String()
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	resp, err := decode(data)
	if err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return resp, true
}

// Set stores resp under k. Timed-out pages are never cached.
func (c *PageCache) Set(ctx context.Context, k Key, resp *executor.Response) {
	if resp == nil || resp.TimedOut {
		return
	}
	key := k.String()
	data, err := encode(resp)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached page or computes, caches and returns it.
// Concurrent misses for the same key share one computation. The shared
// computation runs detached from any single caller's cancellation, so one
// client going away does not fail the others; each caller still stops
// waiting when its own ctx ends. compute must bound itself.
func (c *PageCache) GetOrCompute(
	ctx context.Context,
	k Key,
	compute func(ctx context.Context) (*executor.Response, error),
) (*executor.Response, bool, error) {
	if resp, ok := c.Get(ctx, k); ok {
		return resp, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.String(), func() (any, error) {
		resp, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, k, resp)
		return resp, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.Response), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops every cached page and returns how many were removed.
func (c *PageCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.DeleteByPrefix(ctx, keyPrefix)
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker"`
}

func (c *PageCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.State().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

func (c *PageCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func encode(resp *executor.Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*executor.Response, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var resp executor.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []executor.Result{}
	}
	return &resp, nil
}
