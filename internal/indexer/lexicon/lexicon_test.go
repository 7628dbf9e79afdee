package lexicon

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

const csvData = `Name,Description,URL,Created At,Stars,Forks,Issues,Watchers,Language,Topics
tokio,async runtime for rust,u,1,2,3,4,5,Rust,[]
broken,row
hyper,fast http library for rust,u,1,2,3,4,5,Rust,[]
`

func TestBuildAssignsDenseIDsInFirstSeenOrder(t *testing.T) {
	lex, err := Build(strings.NewReader(csvData), tokenizer.New(tokenizer.Options{}))
	require.NoError(t, err)

	want := map[string]index.WordID{
		"tokio": 0, "async": 1, "runtime": 2, "rust": 3,
		"hyper": 4, "fast": 5, "http": 6, "library": 7,
	}
	assert.Equal(t, len(want), lex.Len())
	for tok, id := range want {
		got, ok := lex.Lookup(tok)
		require.True(t, ok, tok)
		assert.Equal(t, id, got, tok)
	}
	_, ok := lex.Lookup("broken")
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Add("rust")
	b.Add("http")
	b.Add(`quo"te`)
	assert.Equal(t, index.WordID(0), b.Add("rust"))

	path := filepath.Join(t.TempDir(), "lexicon.json")
	require.NoError(t, b.Lexicon().Save(path))

	lex, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, lex.Len())
	id, ok := lex.Lookup(`quo"te`)
	assert.True(t, ok)
	assert.Equal(t, index.WordID(2), id)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, apperrors.ErrArtifactMissing))
}
