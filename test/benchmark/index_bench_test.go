// Package benchmark contains Go benchmarks for the offline build, the barrel
// codec and the query pipeline, measuring throughput and allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
)

// syntheticForward builds a forward index of docs documents over a
// vocabulary of vocab words, each document holding wordsPerDoc of them.
func syntheticForward(docs, vocab, wordsPerDoc int) index.ForwardIndex {
	fwd := make(index.ForwardIndex, docs)
	for d := 1; d <= docs; d++ {
		words := make(map[index.WordID]index.WordStats, wordsPerDoc)
		for k := 0; k < wordsPerDoc; k++ {
			id := index.WordID((d*7 + k*13) % vocab)
			words[id] = index.WordStats{
				Freq:      1,
				Density:   1 / float64(wordsPerDoc),
				Positions: []int{k},
			}
		}
		fwd[index.DocID(d)] = index.ForwardDoc{
			Words:      words,
			ByteOffset: dataset.ByteOffset{int64(d * 120), 118},
		}
	}
	return fwd
}

// BenchmarkInvert measures forward to inverted index conversion at several
// corpus sizes.
func BenchmarkInvert(b *testing.B) {
	for _, docs := range []int{1000, 10000, 50000} {
		fwd := syntheticForward(docs, 5000, 20)
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				inv := index.Invert(fwd)
				_ = inv
			}
		})
	}
}

func BenchmarkApplyIDF(b *testing.B) {
	fwd := syntheticForward(10000, 5000, 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		inv := index.Invert(fwd)
		b.StartTimer()
		inv.ApplyIDF(len(fwd), index.IDFBM25)
	}
}

func BenchmarkPartition(b *testing.B) {
	inv := index.Invert(syntheticForward(10000, 5000, 20))
	policy, err := barrel.NewModuloPolicy(120)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		barrels := barrel.Partition(inv, policy)
		_ = barrels
	}
}

// BenchmarkBarrelCodec measures encode and decode of one barrel with and
// without zstd.
func BenchmarkBarrelCodec(b *testing.B) {
	inv := index.Invert(syntheticForward(10000, 5000, 20))
	policy, err := barrel.NewModuloPolicy(20)
	if err != nil {
		b.Fatal(err)
	}
	one := barrel.Partition(inv, policy)[0]

	for _, compression := range []string{barrel.CompressionNone, barrel.CompressionZstd} {
		data, err := barrel.Encode(one, compression)
		if err != nil {
			b.Fatal(err)
		}
		b.Run("encode_"+compression, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := barrel.Encode(one, compression); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run("decode_"+compression, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := barrel.Decode(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBarrelStoreLoad measures cold and resident barrel loads.
func BenchmarkBarrelStoreLoad(b *testing.B) {
	inv := index.Invert(syntheticForward(10000, 5000, 20))
	policy, err := barrel.NewModuloPolicy(20)
	if err != nil {
		b.Fatal(err)
	}
	dir := b.TempDir()
	if err := barrel.NewWriter(dir, barrel.CompressionZstd, 4).WriteAll(context.Background(), barrel.Partition(inv, policy)); err != nil {
		b.Fatal(err)
	}

	b.Run("cold", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			store := barrel.NewStore(dir, policy.NumBarrels(), nil)
			if _, err := store.Load(context.Background(), i%policy.NumBarrels()); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("resident", func(b *testing.B) {
		store := barrel.NewStore(dir, policy.NumBarrels(), nil)
		if err := store.Preload(context.Background(), 4); err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := store.Load(context.Background(), i%policy.NumBarrels()); err != nil {
				b.Fatal(err)
			}
		}
	})
}
