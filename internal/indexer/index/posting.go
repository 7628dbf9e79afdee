// Package index holds the data model shared by the builder and the query
// engine: forward index, postings and the inverted index, plus inversion and
// IDF weighting.
package index

import (
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
)

// WordID is the lexicon's identifier for a normalized token.
type WordID int

// DocID is the 1-based ordinal of a record in the dataset.
type DocID int

func (w WordID) String() string { return strconv.Itoa(int(w)) }
func (d DocID) String() string  { return strconv.Itoa(int(d)) }

func ParseWordID(s string) (WordID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid word id %q", s)
	}
	return WordID(n), nil
}

func ParseDocID(s string) (DocID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid doc id %q", s)
	}
	return DocID(n), nil
}

// WordStats are the occurrence statistics of one word in one document.
type WordStats struct {
	Freq      int     `json:"freq"`
	Density   float64 `json:"density"`
	Positions []int   `json:"positions"`
}

// Posting is one document's occurrence record for one word. ByteOffset is
// copied into every posting of the document so a query never needs a second
// lookup to materialize it.
type Posting struct {
	Freq       int                `json:"freq" msgpack:"freq"`
	Density    float64            `json:"density" msgpack:"density"`
	Positions  []int              `json:"positions" msgpack:"positions"`
	ByteOffset dataset.ByteOffset `json:"byte_offset" msgpack:"byteOffset"`
	IDF        float64            `json:"idf,omitempty" msgpack:"idf,omitempty"`
}

// Validate checks the invariants every stored posting must hold.
func (p Posting) Validate() error {
	return WordStats{Freq: p.Freq, Density: p.Density, Positions: p.Positions}.Validate()
}

func (s WordStats) Validate() error {
	if s.Freq < 0 {
		return fmt.Errorf("negative freq %d", s.Freq)
	}
	if s.Freq != len(s.Positions) {
		return fmt.Errorf("freq %d != %d positions", s.Freq, len(s.Positions))
	}
	if s.Density < 0 || s.Density > 1 {
		return fmt.Errorf("density %g outside [0,1]", s.Density)
	}
	for i := 1; i < len(s.Positions); i++ {
		if s.Positions[i] < s.Positions[i-1] {
			return fmt.Errorf("positions not ascending at %d", i)
		}
	}
	return nil
}

// DocLength recovers the document's token count from freq and density.
// It returns 0 when density is 0.
func (p Posting) DocLength() float64 {
	if p.Density <= 0 {
		return 0
	}
	return float64(p.Freq) / p.Density
}

// PostingList maps each document containing a word to its posting.
type PostingList map[DocID]Posting

// ForwardDoc is a document's entry in the forward index.
type ForwardDoc struct {
	Words      map[WordID]WordStats `json:"word_data"`
	ByteOffset dataset.ByteOffset   `json:"byte_offset"`
}

// ForwardIndex maps every document to its word statistics.
type ForwardIndex map[DocID]ForwardDoc
