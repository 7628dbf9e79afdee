package forward

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
)

const csvData = `Name,Description,URL,Created At,Stars,Forks,Issues,Watchers,Language,Topics
rust-http,rust http client in rust,u,1,2,3,4,5,Rust,[]
broken,row
gin,web framework,u,1,2,3,4,5,Go,[]
`

func buildSample(t *testing.T) (Result, *lexicon.Lexicon) {
	t.Helper()
	tk := tokenizer.New(tokenizer.Options{})
	lex, err := lexicon.Build(strings.NewReader(csvData), tk)
	require.NoError(t, err)
	res, err := Build(strings.NewReader(csvData), lex, tk)
	require.NoError(t, err)
	return res, lex
}

func TestBuildComputesStatistics(t *testing.T) {
	res, lex := buildSample(t)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Index, 2)

	// The malformed row still consumed DocID 2.
	_, ok := res.Index[2]
	assert.False(t, ok)
	gin, ok := res.Index[3]
	require.True(t, ok)
	assert.Len(t, gin.Words, 3)

	doc := res.Index[1]
	rustID, _ := lex.Lookup("rust")
	httpID, _ := lex.Lookup("http")

	// tokens: rust@0 http@0 rust@1 http@2 client@3 rust@5
	rust := doc.Words[rustID]
	assert.Equal(t, 3, rust.Freq)
	assert.Equal(t, []int{0, 1, 5}, rust.Positions)
	assert.InDelta(t, 0.5, rust.Density, 1e-9)

	http := doc.Words[httpID]
	assert.Equal(t, 2, http.Freq)
	assert.Equal(t, []int{0, 2}, http.Positions)

	for _, ws := range doc.Words {
		assert.NoError(t, ws.Validate())
	}
	assert.Equal(t, int64(len("Name,Description,URL,Created At,Stars,Forks,Issues,Watchers,Language,Topics\n")), doc.ByteOffset.Start())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	res, _ := buildSample(t)
	path := filepath.Join(t.TempDir(), "fwdIdx.json")
	require.NoError(t, Save(path, res.Index))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, loaded.SkippedDocs)
	assert.Zero(t, loaded.SkippedWords)
	assert.Equal(t, res.Index, loaded.Index)
}

func TestDecodeSkipsMalformedEntries(t *testing.T) {
	data := []byte(`{
		"1": {"word_data": {
			"0": {"freq": 2, "density": 0.5, "positions": [1, 3]},
			"1": {"density": 0.5, "positions": [1]},
			"2": {"freq": 3, "density": 0.5, "positions": [1]},
			"x": {"freq": 1, "density": 0.5, "positions": [1]}
		}, "byte_offset": [10, 20]},
		"2": {"word_data": {}},
		"abc": {"word_data": {}, "byte_offset": [0, 1]}
	}`)
	res, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedDocs)
	assert.Equal(t, 3, res.SkippedWords)
	require.Len(t, res.Index, 1)
	assert.Equal(t, index.ForwardDoc{
		Words: map[index.WordID]index.WordStats{
			0: {Freq: 2, Density: 0.5, Positions: []int{1, 3}},
		},
		ByteOffset: dataset.ByteOffset{10, 20},
	}, res.Index[1])
}
