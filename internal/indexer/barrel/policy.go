// Package barrel partitions the inverted index into a fixed number of shard
// files ("barrels") and loads them back for queries.
package barrel

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
)

// DefaultNumBarrels is the barrel count used when none is configured.
const DefaultNumBarrels = 120

// Policy assigns every WordID to exactly one barrel. Implementations must be
// pure functions of the WordID so the assignment is reproducible.
type Policy interface {
	BarrelFor(id index.WordID) int
	NumBarrels() int
}

// ModuloPolicy places a word in barrel wordID mod n.
type ModuloPolicy struct {
	n int
}

func NewModuloPolicy(numBarrels int) (ModuloPolicy, error) {
	if numBarrels < 1 {
		return ModuloPolicy{}, fmt.Errorf("number of barrels must be positive, got %d", numBarrels)
	}
	return ModuloPolicy{n: numBarrels}, nil
}

func (p ModuloPolicy) BarrelFor(id index.WordID) int {
	return int(id) % p.n
}

func (p ModuloPolicy) NumBarrels() int {
	return p.n
}

// Partition splits inv into one Barrel per barrel ID. Barrels that receive no
// words are present and empty.
func Partition(inv index.InvertedIndex, p Policy) []Barrel {
	barrels := make([]Barrel, p.NumBarrels())
	for i := range barrels {
		barrels[i] = make(Barrel)
	}
	for wordID, postings := range inv {
		barrels[p.BarrelFor(wordID)][wordID] = postings
	}
	return barrels
}
