// Package analytics records what the search service is asked and how it
// answers: a non-blocking Kafka collector on the serving side, an aggregator
// that folds events into running statistics, and a PostgreSQL snapshot store.
package analytics

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const latencyWindow = 10000

type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	TimedOutCount     int64        `json:"timed_out_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Builds            int64        `json:"builds"`
	LastBuild         *BuildEvent  `json:"last_build,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running statistics. Latency percentiles are
// computed over the most recent searches only.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	timedOut          int64
	builds            int64
	lastBuild         *BuildEvent
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records e. It satisfies Tracker so a serving process can aggregate
// locally without a broker.
func (a *Aggregator) Track(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case e.Search != nil:
		a.recordSearch(e.Search)
	case e.Build != nil:
		a.builds++
		b := *e.Build
		a.lastBuild = &b
	}
}

func (a *Aggregator) recordSearch(s *SearchEvent) {
	a.totalSearches++
	if s.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if s.TimedOut {
		a.timedOut++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, s.LatencyMs)
	} else {
		a.latencies[a.next] = s.LatencyMs
	}
	a.next = (a.next + 1) % latencyWindow

	q := normalizeQuery(s.Query)
	a.queryCounts[q]++
	if s.TotalCount == 0 && !s.TimedOut {
		a.zeroResults++
		a.zeroResultQueries[q]++
	}
}

// HandleMessage decodes one analytics topic message. Undecodable messages are
// logged and acknowledged so they do not block the partition.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	e, err := DecodeEvent(value)
	if err != nil {
		a.logger.Warn("skipping analytics message", "error", err)
		return nil
	}
	a.Track(e)
	return nil
}

// Restore seeds the counters from a persisted snapshot.
func (a *Aggregator) Restore(s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches = s.TotalSearches
	a.cacheHits = s.CacheHits
	a.cacheMisses = s.CacheMisses
	a.zeroResults = s.ZeroResultCount
	a.timedOut = s.TimedOutCount
	a.builds = s.Builds
	a.lastBuild = s.LastBuild
	for _, qc := range s.TopQueries {
		a.queryCounts[qc.Query] = qc.Count
	}
	for _, qc := range s.ZeroResultQueries {
		a.zeroResultQueries[qc.Query] = qc.Count
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		TimedOutCount:   a.timedOut,
		Builds:          a.builds,
		LastBuild:       a.lastBuild,
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.totalSearches) / elapsed
	}
	return stats
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := min((pct*len(sorted))/100, len(sorted)-1)
	return sorted[idx]
}

// topN orders by count descending, then query text for stable output.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
