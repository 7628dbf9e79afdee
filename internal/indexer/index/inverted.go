package index

import (
	"math"
	"sort"
)

// InvertedIndex maps every word to the documents containing it.
type InvertedIndex map[WordID]PostingList

// IDF weighting modes.
const (
	IDFPlain = "plain"
	IDFBM25  = "bm25"
)

// Invert turns a forward index into an inverted index. Statistics are copied
// verbatim; nothing is recomputed.
func Invert(fwd ForwardIndex) InvertedIndex {
	inv := make(InvertedIndex)
	for docID, doc := range fwd {
		for wordID, ws := range doc.Words {
			postings, ok := inv[wordID]
			if !ok {
				postings = make(PostingList)
				inv[wordID] = postings
			}
			positions := make([]int, len(ws.Positions))
			copy(positions, ws.Positions)
			postings[docID] = Posting{
				Freq:       ws.Freq,
				Density:    ws.Density,
				Positions:  positions,
				ByteOffset: doc.ByteOffset,
			}
		}
	}
	return inv
}

// ApplyIDF attaches an inverse document frequency to every posting.
// totalDocs is the corpus size N; df is the length of each posting list.
func (inv InvertedIndex) ApplyIDF(totalDocs int, mode string) {
	for _, postings := range inv {
		idf := IDF(totalDocs, len(postings), mode)
		for docID, p := range postings {
			p.IDF = idf
			postings[docID] = p
		}
	}
}

// IDF computes ln(N/df) in plain mode or the smoothed
// ln((N-df+0.5)/(df+0.5)+1) in bm25 mode. A zero df or N yields 0.
func IDF(totalDocs, docFreq int, mode string) float64 {
	if totalDocs <= 0 || docFreq <= 0 {
		return 0
	}
	n, df := float64(totalDocs), float64(docFreq)
	if mode == IDFBM25 {
		return math.Log((n-df+0.5)/(df+0.5) + 1)
	}
	return math.Log(n / df)
}

// WordIDs returns the index's words in ascending order.
func (inv InvertedIndex) WordIDs() []WordID {
	ids := make([]WordID, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PostingCount is the total number of (word, document) pairs.
func (inv InvertedIndex) PostingCount() int {
	n := 0
	for _, postings := range inv {
		n += len(postings)
	}
	return n
}

// Stats summarizes a forward index for the build manifest and for BM25.
type Stats struct {
	TotalDocs    int     `json:"total_docs"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// ComputeStats derives corpus statistics from fwd. Document length comes from
// freq/density of any word in the document.
func ComputeStats(fwd ForwardIndex) Stats {
	st := Stats{TotalDocs: len(fwd)}
	if len(fwd) == 0 {
		return st
	}
	var total float64
	for _, doc := range fwd {
		for _, ws := range doc.Words {
			if ws.Density > 0 {
				total += float64(ws.Freq) / ws.Density
				break
			}
		}
	}
	st.AvgDocLength = total / float64(len(fwd))
	return st
}
