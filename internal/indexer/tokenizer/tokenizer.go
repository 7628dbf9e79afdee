// Package tokenizer normalizes repository names and descriptions into the
// terms stored in the lexicon. The same rules run at build time and at query
// time, so a query token and an indexed token always agree.
package tokenizer

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

// Token represents a single normalised term and its position in the
// original word stream.
type Token struct {
	Term     string
	Position int
}

// Options controls the optional parts of normalization.
type Options struct {
	// MinLength drops terms shorter than this many bytes. Values below 2 are
	// raised to 2.
	MinLength int
	// Stem runs the snowball English stemmer over each surviving term.
	Stem bool
}

type Tokenizer struct {
	minLength int
	stem      bool
}

func New(opts Options) *Tokenizer {
	if opts.MinLength < 2 {
		opts.MinLength = 2
	}
	return &Tokenizer{minLength: opts.MinLength, stem: opts.Stem}
}

var defaultTokenizer = New(Options{})

// Tokenize runs the default tokenizer (no stemming, minimum length 2).
func Tokenize(text string) []Token {
	return defaultTokenizer.Tokenize(text)
}

var domainSuffixes = []string{".com", ".org", ".dev", ".gov", ".io", ".edu", ".net", ".js", ".cpp", ".json"}

// Tokenize splits text into normalized tokens. Positions index the raw word
// stream, so a dropped word still consumes its position; the parts of a
// hyphenated word share the position of the whole.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := splitWords(strings.ToLower(text))
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		word = strings.ReplaceAll(strings.TrimSuffix(word, "'s"), "'", "")
		if isURL(word) {
			continue
		}
		for _, suffix := range domainSuffixes {
			if strings.HasSuffix(word, suffix) {
				word = strings.TrimSuffix(word, suffix)
				break
			}
		}
		if !isASCII(word) {
			continue
		}
		word = strings.TrimLeft(word, "/")
		if strings.Contains(word, "-") {
			for _, part := range strings.Split(word, "-") {
				if term, ok := t.normalize(part); ok {
					tokens = append(tokens, Token{Term: term, Position: pos})
				}
			}
			continue
		}
		if term, ok := t.normalize(word); ok {
			tokens = append(tokens, Token{Term: term, Position: pos})
		}
	}
	return tokens
}

// Terms returns the distinct normalized terms of text in first-seen order.
// It is what a search query is reduced to.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

func (t *Tokenizer) normalize(word string) (string, bool) {
	word = strings.Trim(word, ".:")
	if len(word) < t.minLength || isPunctuation(word) {
		return "", false
	}
	if _, stop := stopWords[word]; stop {
		return "", false
	}
	if t.stem {
		word = snowballeng.Stem(word, false)
		if len(word) < t.minLength {
			return "", false
		}
	}
	return word, true
}

// splitWords breaks text on whitespace and on punctuation other than the
// characters that occur inside identifiers, paths and domains.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '-', '.', '/', ':', '\'', '_', '+', '#':
			return false
		}
		return true
	})
}

// isURL reports whether word is a link. The bare words "http" and "www"
// are ordinary tokens.
func isURL(word string) bool {
	for _, prefix := range []string{"http://", "https://", "www.", "//"} {
		if strings.HasPrefix(word, prefix) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}
