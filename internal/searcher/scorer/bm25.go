package scorer

import (
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
)

// BM25 scores candidates with Okapi BM25 blended with a pairwise proximity
// bonus: alpha·bm25 + (1-alpha)·proximity.
type BM25 struct {
	K1    float64
	B     float64
	Alpha float64
}

func NewBM25() BM25 {
	return BM25{K1: 1.5, B: 0.75, Alpha: 0.7}
}

func (BM25) Name() string { return NameBM25 }

func (s BM25) Score(q Query, cands []*Candidate) {
	for _, c := range cands {
		var bm25 float64
		for word, p := range c.Words {
			idf := index.IDF(q.TotalDocs, q.DocFreq[word], index.IDFBM25)
			bm25 += idf * s.tfNorm(float64(p.Freq), p.DocLength(), q.AvgDocLength)
		}
		c.PositionScore = PositionScore(c.Positions())
		c.Coverage = Coverage(len(c.Words), q.Tokens)
		c.Score = s.Alpha*bm25 + (1-s.Alpha)*Proximity(c)
	}
}

func (s BM25) tfNorm(tf, docLen, avgDocLen float64) float64 {
	if avgDocLen <= 0 || tf <= 0 {
		return 0
	}
	denom := tf + s.K1*(1-s.B+s.B*docLen/avgDocLen)
	return tf * (s.K1 + 1) / denom
}

// Proximity sums 1/(1+d) over every pair of matched words, where d is the
// smallest distance between an occurrence of one and of the other.
func Proximity(c *Candidate) float64 {
	words := make([]index.WordID, 0, len(c.Words))
	for w := range c.Words {
		words = append(words, w)
	}
	slices.Sort(words)

	var total float64
	for i := 0; i < len(words); i++ {
		for j := i + 1; j < len(words); j++ {
			d, ok := minDistance(c.Words[words[i]].Positions, c.Words[words[j]].Positions)
			if ok {
				total += 1 / (1 + float64(d))
			}
		}
	}
	return total
}

// minDistance walks two ascending position lists in step.
func minDistance(a, b []int) (int, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	best := math.MaxInt
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		d := a[i] - b[j]
		if d < 0 {
			d = -d
		}
		best = min(best, d)
		if a[i] < b[j] {
			i++
		} else {
			j++
		}
	}
	return best, true
}
