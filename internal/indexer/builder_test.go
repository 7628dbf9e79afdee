package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/forward"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

const corpus = `Name,Description,URL,Created At,Stars,Forks,Issues,Watchers,Language,Topics
tokio,"A runtime for writing reliable, asynchronous applications with Rust",https://github.com/tokio-rs/tokio,1,25000,2300,300,25000,Rust,"['async', 'rust']"
hyper,A fast HTTP implementation for Rust,https://github.com/hyperium/hyper,1,14000,1500,200,14000,Rust,"['http', 'rust']"
gin,Gin is a HTTP web framework written in Go,https://github.com/gin-gonic/gin,1,77000,8000,700,77000,Go,"['web', 'http']"
broken,row
requests,"A simple, yet elegant, HTTP library.",https://github.com/psf/requests,1,51000,9000,200,51000,Python,[]
`

func testConfig(t *testing.T) config.IndexConfig {
	t.Helper()
	dir := t.TempDir()
	ds := filepath.Join(dir, "repositories.csv")
	require.NoError(t, os.WriteFile(ds, []byte(corpus), 0o644))
	return config.IndexConfig{
		DataDir:          filepath.Join(dir, "index"),
		NumBarrels:       7,
		Compression:      barrel.CompressionZstd,
		DatasetPath:      ds,
		LexiconPath:      filepath.Join(dir, "index", "lexicon.json"),
		ForwardIndexPath: filepath.Join(dir, "index", "fwdIdx.json"),
		ComputeIDF:       true,
		IDFMode:          index.IDFBM25,
	}
}

func TestBuildRoundTripThroughBarrels(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(cfg, tokenizer.New(tokenizer.Options{}), nil)
	m, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, m.TotalDocs)
	assert.Equal(t, 7, m.NumBarrels)
	assert.NotEmpty(t, m.BuildID)
	assert.NotEmpty(t, m.Dataset.Hash)

	fwd, err := forward.Load(cfg.ForwardIndexPath)
	require.NoError(t, err)
	want := index.Invert(fwd.Index)
	want.ApplyIDF(m.TotalDocs, index.IDFBM25)
	assert.Equal(t, want.PostingCount(), m.PostingCount)

	dir, err := directory.Load(cfg.DirectoryPath())
	require.NoError(t, err)
	store := barrel.NewStore(cfg.BarrelPath(), m.NumBarrels, nil)

	got := make(index.InvertedIndex)
	for wordID, barrelID := range dir.Entries() {
		bl, err := store.Load(context.Background(), barrelID)
		require.NoError(t, err)
		postings, ok := bl[wordID]
		require.True(t, ok)
		got[wordID] = postings
		for _, p := range postings {
			assert.Equal(t, p.Freq, len(p.Positions))
		}
	}
	assert.Equal(t, want, got)
}

func TestRunFromForwardMatchesFullBuild(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(cfg, tokenizer.New(tokenizer.Options{}), nil)
	first, err := b.Run(context.Background())
	require.NoError(t, err)

	second, err := b.RunFromForward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.PostingCount, second.PostingCount)
	assert.Equal(t, first.Dataset, second.Dataset)
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestManifestVerifyDataset(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewBuilder(cfg, tokenizer.New(tokenizer.Options{}), nil).Run(context.Background())
	require.NoError(t, err)

	read, err := ReadManifest(cfg.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, m.BuildID, read.BuildID)
	require.NoError(t, read.VerifyDataset(cfg.DatasetPath))

	require.NoError(t, os.WriteFile(cfg.DatasetPath, []byte(corpus+"extra,row\n"), 0o644))
	err = read.VerifyDataset(cfg.DatasetPath)
	assert.True(t, errors.Is(err, apperrors.ErrDatasetMismatch))
}

func TestRebuildDirectory(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(cfg, tokenizer.New(tokenizer.Options{}), nil)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(cfg.DirectoryPath()))
	dir, err := b.RebuildDirectory(context.Background())
	require.NoError(t, err)
	assert.Positive(t, dir.Len())
	_, err = os.Stat(cfg.DirectoryPath())
	assert.NoError(t, err)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), ManifestFileName))
	assert.True(t, errors.Is(err, apperrors.ErrArtifactMissing))
}
