// Package scorer ranks the candidate documents of one query. The weighted
// blend is the default; BM25 is an interchangeable alternative selected per
// deployment.
package scorer

import (
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
)

const (
	NameWeighted = "weighted"
	NameBM25     = "bm25"
)

// Candidate accumulates one document's signals across every matched word of
// a query. It lives for a single query only.
type Candidate struct {
	DocID      index.DocID
	Freq       int
	Density    float64
	ByteOffset dataset.ByteOffset

	// Words holds the posting of each matched word, keyed by word ID.
	Words map[index.WordID]index.Posting

	PositionScore float64
	Coverage      float64
	Score         float64
}

// NewCandidate starts an empty accumulator for doc.
func NewCandidate(doc index.DocID, off dataset.ByteOffset) *Candidate {
	return &Candidate{
		DocID:      doc,
		ByteOffset: off,
		Words:      make(map[index.WordID]index.Posting),
	}
}

// Add folds one word's posting into the candidate. The first-seen byte offset
// is kept.
func (c *Candidate) Add(word index.WordID, p index.Posting) {
	if _, seen := c.Words[word]; seen {
		return
	}
	c.Words[word] = p
	c.Freq += p.Freq
	c.Density += p.Density
}

// Positions returns the sorted distinct positions of all matched words.
func (c *Candidate) Positions() []int {
	var out []int
	for _, p := range c.Words {
		out = append(out, p.Positions...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Query describes the query and corpus statistics available to a scorer.
type Query struct {
	// Tokens is the number of distinct query tokens, including tokens the
	// lexicon does not know.
	Tokens       int
	TotalDocs    int
	AvgDocLength float64
	// DocFreq is the posting-list length of each matched word.
	DocFreq map[index.WordID]int
}

// DocumentScorer assigns Score, PositionScore and Coverage to every candidate.
type DocumentScorer interface {
	Name() string
	Score(q Query, cands []*Candidate)
}

// New returns the scorer registered under name.
func New(name string) (DocumentScorer, error) {
	switch name {
	case "", NameWeighted:
		return WeightedBlend{}, nil
	case NameBM25:
		return NewBM25(), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// Rank sorts candidates by score descending, ties broken by DocID ascending.
func Rank(cands []*Candidate) {
	slices.SortFunc(cands, func(a, b *Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return int(a.DocID) - int(b.DocID)
	})
}

// PositionScore is the number of distinct matched positions divided by the
// span they cover. It is 1 for contiguous positions and 0 for none.
func PositionScore(positions []int) float64 {
	if len(positions) == 0 {
		return 0
	}
	span := positions[len(positions)-1] - positions[0] + 1
	return float64(len(positions)) / float64(span)
}

// Coverage is the fraction of distinct query tokens matched.
func Coverage(matched, queryTokens int) float64 {
	if queryTokens <= 0 {
		return 0
	}
	return float64(matched) / float64(queryTokens)
}

func ratio(v, maxV float64) float64 {
	if maxV <= 0 {
		return 0
	}
	return v / maxV
}
