package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizePositionsAndHyphens(t *testing.T) {
	got := Tokenize("Fast web-server for rust's ecosystem")
	want := []Token{
		{Term: "fast", Position: 0},
		{Term: "web", Position: 1},
		{Term: "server", Position: 1},
		{Term: "rust", Position: 3},
		{Term: "ecosystem", Position: 4},
	}
	assert.Equal(t, want, got)
}

func TestTokenizeDropsURLsAndNonASCII(t *testing.T) {
	got := Tokenize("see https://github.com www.example.org café example.com /usr")
	terms := make([]string, 0, len(got))
	for _, tok := range got {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"see", "example", "usr"}, terms)
}

func TestTokenizeStopwordsAndShortTerms(t *testing.T) {
	assert.Empty(t, Tokenize("the a of x , ... !!"))
	assert.Empty(t, Tokenize(""))
}

func TestTokenizeStemming(t *testing.T) {
	tk := New(Options{Stem: true})
	got := tk.Terms("Running parsers")
	assert.Equal(t, []string{"run", "parser"}, got)
}

func TestTermsDedupes(t *testing.T) {
	assert.Equal(t, []string{"rust", "http"}, New(Options{}).Terms("Rust HTTP rust http RUST"))
}

func TestMinLength(t *testing.T) {
	tk := New(Options{MinLength: 4})
	assert.Equal(t, []string{"rust", "tokio"}, tk.Terms("go rust tokio ui"))
}
