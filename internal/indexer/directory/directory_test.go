package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

func writeBarrels(t *testing.T, dir string, n int) index.InvertedIndex {
	t.Helper()
	inv := make(index.InvertedIndex)
	for w := 0; w < 40; w += 3 {
		inv[index.WordID(w)] = index.PostingList{
			1: {Freq: 1, Density: 1, Positions: []int{0}, ByteOffset: dataset.ByteOffset{0, 5}},
		}
	}
	p, err := barrel.NewModuloPolicy(n)
	require.NoError(t, err)
	require.NoError(t, barrel.NewWriter(dir, barrel.CompressionNone, 2).WriteAll(context.Background(), barrel.Partition(inv, p)))
	return inv
}

func TestBuildByScanIsConsistent(t *testing.T) {
	dir := t.TempDir()
	inv := writeBarrels(t, dir, 6)
	store := barrel.NewStore(dir, 6, nil)

	d, err := BuildByScan(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, len(inv), d.Len())

	for wordID := range inv {
		id, ok := d.Lookup(wordID)
		require.True(t, ok)
		b, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		_, present := b[wordID]
		assert.True(t, present, "word %d not in barrel %d", wordID, id)
	}
	_, ok := d.Lookup(1)
	assert.False(t, ok)
}

func TestBuildByScanRejectsDuplicateOwner(t *testing.T) {
	dir := t.TempDir()
	b := barrel.Barrel{7: index.PostingList{1: {Freq: 1, Density: 1, Positions: []int{0}}}}
	require.NoError(t, barrel.NewWriter(dir, barrel.CompressionNone, 1).WriteAll(context.Background(), []barrel.Barrel{b, b}))

	_, err := BuildByScan(context.Background(), barrel.NewStore(dir, 2, nil))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	writeBarrels(t, dir, 4)
	d, err := BuildByScan(context.Background(), barrel.NewStore(dir, 4, nil))
	require.NoError(t, err)

	path := filepath.Join(dir, FileName)
	require.NoError(t, d.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d.Entries(), loaded.Entries())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.True(t, errors.Is(err, apperrors.ErrArtifactMissing))
}

func TestLoadOrRebuild(t *testing.T) {
	dir := t.TempDir()
	inv := writeBarrels(t, dir, 5)
	path := filepath.Join(dir, FileName)

	d, err := LoadOrRebuild(context.Background(), path, barrel.NewStore(dir, 5, nil))
	require.NoError(t, err)
	assert.Equal(t, len(inv), d.Len())

	_, err = os.Stat(path)
	require.NoError(t, err, "rebuilt directory should be persisted")

	again, err := LoadOrRebuild(context.Background(), path, barrel.NewStore(dir, 5, nil))
	require.NoError(t, err)
	assert.Equal(t, d.Entries(), again.Entries())
}
