package barrel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
)

func sampleInverted() index.InvertedIndex {
	inv := make(index.InvertedIndex)
	for w := 0; w < 25; w++ {
		inv[index.WordID(w)] = index.PostingList{
			index.DocID(w + 1): {Freq: 1, Density: 0.5, Positions: []int{w}, ByteOffset: dataset.ByteOffset{int64(w * 10), 10}},
		}
	}
	return inv
}

func TestModuloPolicy(t *testing.T) {
	_, err := NewModuloPolicy(0)
	assert.Error(t, err)

	p, err := NewModuloPolicy(7)
	require.NoError(t, err)
	assert.Equal(t, 3, p.BarrelFor(10))
	assert.Equal(t, 0, p.BarrelFor(14))
	assert.Equal(t, 7, p.NumBarrels())
}

func TestPartitionSingleOwner(t *testing.T) {
	inv := sampleInverted()
	p, _ := NewModuloPolicy(4)
	barrels := Partition(inv, p)
	require.Len(t, barrels, 4)

	owners := make(map[index.WordID]int)
	for id, b := range barrels {
		for w := range b {
			prev, dup := owners[w]
			require.False(t, dup, "word %d in barrels %d and %d", w, prev, id)
			owners[w] = id
			assert.Equal(t, p.BarrelFor(w), id)
		}
	}
	assert.Len(t, owners, len(inv))
}

func TestCodecRoundTrip(t *testing.T) {
	p, _ := NewModuloPolicy(1)
	b := Partition(sampleInverted(), p)[0]
	for _, mode := range []string{CompressionNone, CompressionZstd} {
		data, err := Encode(b, mode)
		require.NoError(t, err, mode)
		got, err := Decode(data)
		require.NoError(t, err, mode)
		assert.Equal(t, b, got, mode)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not msgpack at all"))
	assert.Error(t, err)
}

func TestStoreLoadsWrittenBarrels(t *testing.T) {
	dir := t.TempDir()
	p, _ := NewModuloPolicy(3)
	barrels := Partition(sampleInverted(), p)
	require.NoError(t, NewWriter(dir, CompressionZstd, 2).WriteAll(context.Background(), barrels))

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	store := NewStore(dir, 3, m)
	for id := 0; id < 3; id++ {
		got, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, barrels[id], got)
	}
	assert.Equal(t, 3, store.Resident())

	_, err := store.Load(context.Background(), 3)
	assert.Error(t, err)
}

func TestStoreMissingBarrelIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), 2, nil)
	b, err := store.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestStoreCorruptBarrelErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(0)), []byte{0xc1, 0xc1}, 0o644))
	_, err := NewStore(dir, 1, nil).Load(context.Background(), 0)
	assert.Error(t, err)
}

func TestStorePreload(t *testing.T) {
	dir := t.TempDir()
	p, _ := NewModuloPolicy(5)
	require.NoError(t, NewWriter(dir, CompressionNone, 1).WriteAll(context.Background(), Partition(sampleInverted(), p)))

	store := NewStore(dir, 5, nil)
	require.NoError(t, store.Preload(context.Background(), 2))
	assert.Equal(t, 5, store.Resident())
}

func TestStoreLoadHonorsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	p, _ := NewModuloPolicy(1)
	require.NoError(t, NewWriter(dir, CompressionNone, 1).WriteAll(context.Background(), Partition(sampleInverted(), p)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewStore(dir, 1, nil)
	_, err := store.Load(ctx, 0)
	// Either the read won the race or the cancellation did; both are valid,
	// but a cancelled load must report the context error.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
