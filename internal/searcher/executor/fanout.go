package executor

import (
	"context"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

// barrelPostings holds the requested words' postings from one barrel.
type barrelPostings struct {
	id       int
	words    []index.WordID
	postings map[index.WordID]index.PostingList
	err      error
}

// fanOut loads every needed barrel on the worker pool, one task per barrel,
// and returns their postings ordered by barrel ID. A barrel that fails to
// load is logged and treated as absent. When ctx ends, pending loads are
// abandoned and ctx.Err() is returned.
func (e *Executor) fanOut(ctx context.Context, src *Source, groups map[int][]index.WordID) ([]barrelPostings, error) {
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	ch := make(chan barrelPostings, len(ids))
	for _, id := range ids {
		words := groups[id]
		task := func() { ch <- e.loadBarrel(ctx, src, id, words) }
		if err := e.pool.Submit(ctx, task); err != nil {
			return nil, fmt.Errorf("scheduling barrel %d: %w", id, err)
		}
	}

	log := logger.FromContext(ctx)
	byID := make(map[int]barrelPostings, len(ids))
	for range ids {
		select {
		case r := <-ch:
			if r.err != nil {
				log.Warn("barrel unavailable", "barrel_id", r.id, "error", r.err)
				continue
			}
			byID[r.id] = r
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]barrelPostings, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Executor) loadBarrel(ctx context.Context, src *Source, id int, words []index.WordID) barrelPostings {
	if e.opts.TimeoutPerBarrel > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TimeoutPerBarrel)
		defer cancel()
	}
	res := barrelPostings{id: id, words: words}
	b, err := src.Barrels.Load(ctx, id)
	if err != nil {
		res.err = err
		return res
	}
	res.postings = make(map[index.WordID]index.PostingList, len(words))
	for _, w := range words {
		if pl, ok := b[w]; ok {
			res.postings[w] = pl
		}
	}
	return res
}
