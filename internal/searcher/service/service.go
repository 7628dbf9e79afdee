// Package service is the query service context: the current index snapshot,
// the shared worker pool, the tokenizer and the optional page cache. It is
// built once at startup and handed to every request handler.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/pool"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/tracing"
)

// Outcome is a page of results together with how it was produced.
type Outcome struct {
	*executor.Response
	Tokens   []string
	CacheHit bool
	BuildID  string
}

type Service struct {
	index  config.IndexConfig
	search config.SearchConfig

	tokenizer *tokenizer.Tokenizer
	pool      *pool.Pool
	executor  *executor.Executor
	cache     *cache.PageCache
	metrics   *metrics.Metrics
	logger    *slog.Logger

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	retired  sync.WaitGroup
}

// New loads the initial snapshot and starts the worker pool. pc and m may
// be nil.
func New(ctx context.Context, cfg *config.Config, pc *cache.PageCache, m *metrics.Metrics) (*Service, error) {
	sc, err := scorer.New(cfg.Search.Scorer)
	if err != nil {
		return nil, err
	}
	snap, err := LoadSnapshot(ctx, cfg.Index, cfg.Search, m)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	p := pool.New(cfg.Search.Workers)
	s := &Service{
		index:  cfg.Index,
		search: cfg.Search,
		tokenizer: tokenizer.New(tokenizer.Options{
			MinLength: cfg.Tokenizer.MinLength,
			Stem:      cfg.Tokenizer.Stem,
		}),
		pool: p,
		executor: executor.New(p, sc, executor.Options{
			Timeout:            cfg.Search.Timeout,
			TimeoutPerBarrel:   cfg.Search.TimeoutPerBarrel,
			MaterializeWorkers: cfg.Search.MaterializeWorkers,
		}, m),
		cache:   pc,
		metrics: m,
		logger:  slog.Default().With("component", "search-service"),
	}
	s.current.Store(snap)
	s.logger.Info("search service ready", "build_id", snap.BuildID(), "scorer", sc.Name(), "workers", p.Size())
	return s, nil
}

// Snapshot returns the snapshot new queries run against.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

func (s *Service) Scorer() string {
	return s.executor.Scorer()
}

// Search normalizes query and returns the requested page, from the cache
// when possible.
func (s *Service) Search(ctx context.Context, query string, page, perPage int) (*Outcome, error) {
	ctx, span := tracing.StartChildSpan(ctx, "service.search")
	defer span.End()

	tokens := s.tokenizer.Terms(query)
	snap := s.Snapshot()
	out := &Outcome{Tokens: tokens, BuildID: snap.BuildID()}
	span.SetAttr("build_id", out.BuildID)

	run := func(ctx context.Context) (*executor.Response, error) {
		return s.executor.Search(ctx, snap.Source(), tokens, page, perPage)
	}
	if s.cache == nil || len(tokens) == 0 {
		resp, err := run(ctx)
		if err != nil {
			return nil, err
		}
		out.Response = resp
		return out, nil
	}

	key := cache.Key{BuildID: out.BuildID, Tokens: tokens, Page: page, PerPage: perPage}
	resp, hit, err := s.cache.GetOrCompute(ctx, key, run)
	if err != nil {
		return nil, err
	}
	span.SetAttr("cache_hit", hit)
	out.Response = resp
	out.CacheHit = hit
	return out, nil
}

// Reload loads a fresh snapshot and swaps it in. The previous snapshot stays
// open for a grace period so queries already running on it can finish.
func (s *Service) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	next, err := LoadSnapshot(ctx, s.index, s.search, s.metrics)
	if err != nil {
		s.recordSwap("error")
		return fmt.Errorf("reloading index: %w", err)
	}
	prev := s.current.Swap(next)
	s.recordSwap("ok")
	s.logger.Info("index snapshot swapped", "from", prev.BuildID(), "to", next.BuildID())

	grace := 2*s.search.Timeout + time.Second
	s.retired.Add(1)
	time.AfterFunc(grace, func() {
		defer s.retired.Done()
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing retired snapshot", "build_id", prev.BuildID(), "error", err)
		}
	})
	return nil
}

func (s *Service) recordSwap(status string) {
	if s.metrics != nil {
		s.metrics.SnapshotSwapsTotal.WithLabelValues(status).Inc()
	}
}

// Close stops the worker pool and releases every snapshot.
func (s *Service) Close() error {
	s.pool.Close()
	s.retired.Wait()
	return s.Snapshot().Close()
}
