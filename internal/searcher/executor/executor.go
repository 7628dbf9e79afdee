// Package executor is the query engine: it resolves query tokens to words,
// loads the barrels holding them through a shared worker pool, scores the
// candidate documents and materializes one page of results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/pool"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/scorer"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/tracing"
)

type Lexicon interface {
	Lookup(token string) (index.WordID, bool)
}

type Directory interface {
	Lookup(id index.WordID) (int, bool)
}

type BarrelLoader interface {
	Load(ctx context.Context, id int) (barrel.Barrel, error)
}

type Materializer interface {
	Fetch(ctx context.Context, off dataset.ByteOffset) (dataset.Record, error)
}

// Source is the read-only index a query runs against.
type Source struct {
	Lexicon      Lexicon
	Directory    Directory
	Barrels      BarrelLoader
	Docs         Materializer
	TotalDocs    int
	AvgDocLength float64
}

// Result is one materialized document of a result page.
type Result struct {
	DocID       index.DocID `json:"doc_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Watchers    int64       `json:"watchers"`
	Language    string      `json:"language"`
	Topics      []string    `json:"topics"`
	Stars       int64       `json:"stars"`
	Forks       int64       `json:"forks"`
	Freq        int         `json:"freq"`
	Density     float64     `json:"density"`
	FinalScore  float64     `json:"final_score"`
}

// Response is one page of a query. TotalCount counts every candidate, not
// just the page.
type Response struct {
	Results    []Result      `json:"results"`
	TotalCount int           `json:"total_count"`
	TimedOut   bool          `json:"timed_out"`
	Elapsed    time.Duration `json:"-"`
}

// Options tune an Executor. Zero values fall back to defaults.
type Options struct {
	Timeout            time.Duration
	TimeoutPerBarrel   time.Duration
	MaterializeWorkers int
}

// Executor runs queries. It holds no per-query state and is safe for
// concurrent use.
type Executor struct {
	pool    *pool.Pool
	scorer  scorer.DocumentScorer
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Executor that schedules barrel loads on p. m may be nil.
func New(p *pool.Pool, s scorer.DocumentScorer, opts Options, m *metrics.Metrics) *Executor {
	if opts.MaterializeWorkers < 1 {
		opts.MaterializeWorkers = 4
	}
	return &Executor{
		pool:    p,
		scorer:  s,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Scorer() string {
	return e.scorer.Name()
}

// Search returns page of the ranked candidates for tokens. Tokens are already
// normalized; duplicates are ignored. If the deadline expires while barrels
// are loading, the response is empty with TimedOut set.
func (e *Executor) Search(ctx context.Context, src *Source, tokens []string, page, perPage int) (*Response, error) {
	if page < 1 || perPage < 1 {
		return nil, apperrors.Invalid("page and per_page must be at least 1")
	}
	tokens = distinct(tokens)
	if len(tokens) == 0 {
		return &Response{Results: []Result{}}, nil
	}

	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "executor.search")
	defer span.End()
	span.SetAttr("tokens", len(tokens))
	log := logger.FromContext(ctx)

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	groups, words := e.plan(src, tokens)
	if len(words) == 0 {
		return &Response{Results: []Result{}, Elapsed: time.Since(start)}, nil
	}
	span.SetAttr("barrels", len(groups))

	fetched, err := e.fanOut(ctx, src, groups)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("search timed out loading barrels", "tokens", tokens, "barrels", len(groups))
			return &Response{Results: []Result{}, TimedOut: true, Elapsed: time.Since(start)}, nil
		}
		return nil, fmt.Errorf("loading barrels: %w", err)
	}

	cands, docFreq := fold(fetched)
	e.scorer.Score(scorer.Query{
		Tokens:       len(tokens),
		TotalDocs:    src.TotalDocs,
		AvgDocLength: src.AvgDocLength,
		DocFreq:      docFreq,
	}, cands)
	scorer.Rank(cands)

	total := len(cands)
	from, to := pageBounds(total, page, perPage)
	results := e.materialize(ctx, src, cands[from:to], tokens)
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Response{Results: []Result{}, TimedOut: true, Elapsed: time.Since(start)}, nil
	}

	span.SetAttr("candidates", total)
	log.Debug("query executed",
		"tokens", tokens,
		"words", len(words),
		"barrels", len(groups),
		"candidates", total,
		"returned", len(results),
		"scorer", e.scorer.Name(),
	)
	return &Response{
		Results:    results,
		TotalCount: total,
		Elapsed:    time.Since(start),
	}, nil
}

// plan maps tokens to words and groups the words by owning barrel. Tokens the
// lexicon or the directory does not know are dropped.
func (e *Executor) plan(src *Source, tokens []string) (map[int][]index.WordID, []index.WordID) {
	groups := make(map[int][]index.WordID)
	var words []index.WordID
	for _, tok := range tokens {
		id, ok := src.Lexicon.Lookup(tok)
		if !ok {
			continue
		}
		b, ok := src.Directory.Lookup(id)
		if !ok {
			continue
		}
		groups[b] = append(groups[b], id)
		words = append(words, id)
	}
	return groups, words
}

// fold merges the fetched postings into one candidate per document. It runs
// after every barrel load has returned, so the accumulator needs no lock.
func fold(fetched []barrelPostings) ([]*scorer.Candidate, map[index.WordID]int) {
	byDoc := make(map[index.DocID]*scorer.Candidate)
	docFreq := make(map[index.WordID]int)
	var cands []*scorer.Candidate
	for _, bp := range fetched {
		for _, word := range bp.words {
			postings := bp.postings[word]
			docFreq[word] = len(postings)
			for doc, p := range postings {
				c, ok := byDoc[doc]
				if !ok {
					c = scorer.NewCandidate(doc, p.ByteOffset)
					byDoc[doc] = c
					cands = append(cands, c)
				}
				c.Add(word, p)
			}
		}
	}
	return cands, docFreq
}

// pageBounds returns the [from, to) slice of a page, clamped to total. Pages
// past the end are empty.
func pageBounds(total, page, perPage int) (int, int) {
	if page < 1 || perPage < 1 || page-1 > total/perPage {
		return total, total
	}
	from := min((page-1)*perPage, total)
	to := min(from+perPage, total)
	return from, to
}

// TotalPages is ceil(total/perPage).
func TotalPages(total, perPage int) int {
	if perPage < 1 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

type blended struct {
	result Result
	score  float64
}

// materialize reads the page's records in parallel and orders them by the
// blended lexical score. Records that fail to load are skipped.
func (e *Executor) materialize(ctx context.Context, src *Source, page []*scorer.Candidate, tokens []string) []Result {
	if len(page) == 0 {
		return []Result{}
	}
	ctx, span := tracing.StartChildSpan(ctx, "executor.materialize")
	defer span.End()
	log := logger.FromContext(ctx)

	slots := make([]*blended, len(page))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaterializeWorkers)
	for i, c := range page {
		g.Go(func() error {
			rec, err := src.Docs.Fetch(gctx, c.ByteOffset)
			if err != nil {
				log.Warn("skipping document", "doc_id", c.DocID, "error", err)
				if e.metrics != nil {
					e.metrics.MaterializeFailures.Inc()
				}
				return nil
			}
			slots[i] = blend(c, rec, tokens)
			return nil
		})
	}
	_ = g.Wait()

	items := make([]*blended, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			items = append(items, s)
		}
	}
	top := merger.TopK(items, len(page), func(a, b *blended) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		return a.result.DocID < b.result.DocID
	})
	out := make([]Result, len(top))
	for i, b := range top {
		out[i] = b.result
	}
	span.SetAttr("materialized", len(out))
	return out
}

const (
	weightName        = 0.4
	weightDescription = 0.5
	weightStats       = 0.1
)

// blend scores a record by how many query tokens occur in its name and
// description, plus a small freq/density term.
func blend(c *scorer.Candidate, rec dataset.Record, tokens []string) *blended {
	name := strings.ToLower(rec.Name)
	desc := strings.ToLower(rec.Description)
	var nameHits, descHits int
	for _, t := range tokens {
		if strings.Contains(name, t) {
			nameHits++
		}
		if strings.Contains(desc, t) {
			descHits++
		}
	}
	score := weightName*float64(nameHits) +
		weightDescription*float64(descHits) +
		weightStats*(float64(c.Freq)+c.Density)

	topics := rec.Topics
	if topics == nil {
		topics = []string{}
	}
	return &blended{
		score: score,
		result: Result{
			DocID:       c.DocID,
			Name:        rec.Name,
			Description: rec.Description,
			URL:         rec.URL,
			Watchers:    rec.Watchers,
			Language:    rec.Language,
			Topics:      topics,
			Stars:       rec.Stars,
			Forks:       rec.Forks,
			Freq:        c.Freq,
			Density:     c.Density,
			FinalScore:  score,
		},
	}
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
