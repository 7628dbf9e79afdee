// Package lexicon assigns every normalized token a stable WordID and persists
// the table as JSON ({"token": wordID}).
package lexicon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

// Lexicon is a read-only token to WordID table once built or loaded.
type Lexicon struct {
	ids map[string]index.WordID
}

func New(ids map[string]index.WordID) *Lexicon {
	if ids == nil {
		ids = make(map[string]index.WordID)
	}
	return &Lexicon{ids: ids}
}

// Lookup returns the WordID for token.
func (l *Lexicon) Lookup(token string) (index.WordID, bool) {
	id, ok := l.ids[token]
	return id, ok
}

func (l *Lexicon) Len() int {
	return len(l.ids)
}

// Builder assigns dense WordIDs from 0 in order of first appearance.
type Builder struct {
	ids map[string]index.WordID
}

func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]index.WordID)}
}

func (b *Builder) Add(token string) index.WordID {
	if id, ok := b.ids[token]; ok {
		return id
	}
	id := index.WordID(len(b.ids))
	b.ids[token] = id
	return id
}

func (b *Builder) Lexicon() *Lexicon {
	return &Lexicon{ids: b.ids}
}

// BuildFromDataset tokenizes name and description of every well-formed
// record in the dataset at path.
func BuildFromDataset(path string, tk *tokenizer.Tokenizer) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	defer f.Close()
	return Build(f, tk)
}

func Build(r io.Reader, tk *tokenizer.Tokenizer) (*Lexicon, error) {
	log := logger.WithComponent("lexicon")
	b := NewBuilder()
	skipped := 0
	err := dataset.Scan(r, func(rec dataset.RawRecord) error {
		fields, err := dataset.ParseFields(rec.Data)
		if err != nil || len(fields) < dataset.NumColumns {
			skipped++
			return nil
		}
		for _, tok := range tk.Tokenize(fields[dataset.ColName] + " " + fields[dataset.ColDescription]) {
			b.Add(tok.Term)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building lexicon: %w", err)
	}
	log.Info("lexicon built", "words", len(b.ids), "skipped_records", skipped)
	return b.Lexicon(), nil
}

// Save writes the table as JSON with tokens sorted by WordID, through a
// temporary file renamed into place.
func (l *Lexicon) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lexicon dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating lexicon file: %w", err)
	}
	if err := l.encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing lexicon file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming lexicon file: %w", err)
	}
	return nil
}

func (l *Lexicon) encode(w io.Writer) error {
	tokens := make([]string, 0, len(l.ids))
	for tok := range l.ids {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return l.ids[tokens[i]] < l.ids[tokens[j]] })

	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for i, tok := range tokens {
		key, err := json.Marshal(tok)
		if err != nil {
			return fmt.Errorf("encoding token %q: %w", tok, err)
		}
		sep := ",\n"
		if i == 0 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "%s  %s: %d", sep, key, l.ids[tok]); err != nil {
			return fmt.Errorf("writing lexicon: %w", err)
		}
	}
	_, err := io.WriteString(w, "\n}\n")
	return err
}

// Load reads a lexicon written by Save (or any JSON object of token to
// non-negative integer).
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: lexicon %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	var ids map[string]index.WordID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	for tok, id := range ids {
		if id < 0 {
			return nil, fmt.Errorf("lexicon %s: negative word id for %q", path, tok)
		}
	}
	return New(ids), nil
}
