// Package forward builds the forward index (document to word statistics)
// from the dataset and the lexicon, and persists it as JSON.
package forward

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

// Result is a built forward index with its build counters.
type Result struct {
	Index   index.ForwardIndex
	Skipped int
}

// Build scans the dataset once. Every record consumes a DocID, including
// records that are skipped for having too few fields.
func Build(r io.Reader, lex *lexicon.Lexicon, tk *tokenizer.Tokenizer) (Result, error) {
	log := logger.WithComponent("forward-builder")
	res := Result{Index: make(index.ForwardIndex)}
	err := dataset.Scan(r, func(rec dataset.RawRecord) error {
		fields, err := dataset.ParseFields(rec.Data)
		if err != nil || len(fields) < dataset.NumColumns {
			res.Skipped++
			log.Warn("skipping malformed record", "doc_id", rec.Ordinal, "fields", len(fields), "error", err)
			return nil
		}
		text := fields[dataset.ColName] + " " + fields[dataset.ColDescription]
		res.Index[index.DocID(rec.Ordinal)] = index.ForwardDoc{
			Words:      wordStats(tk.Tokenize(text), lex),
			ByteOffset: rec.Offset,
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("building forward index: %w", err)
	}
	log.Info("forward index built", "documents", len(res.Index), "skipped", res.Skipped)
	return res, nil
}

func BuildFromDataset(path string, lex *lexicon.Lexicon, tk *tokenizer.Tokenizer) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: dataset %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	defer f.Close()
	return Build(f, lex, tk)
}

// wordStats groups tokens by WordID. Density is freq over all tokens of the
// document, including tokens the lexicon does not know.
func wordStats(tokens []tokenizer.Token, lex *lexicon.Lexicon) map[index.WordID]index.WordStats {
	words := make(map[index.WordID]index.WordStats)
	total := len(tokens)
	for _, tok := range tokens {
		id, ok := lex.Lookup(tok.Term)
		if !ok {
			continue
		}
		ws := words[id]
		ws.Positions = append(ws.Positions, tok.Position)
		words[id] = ws
	}
	for id, ws := range words {
		ws.Freq = len(ws.Positions)
		if total > 0 {
			ws.Density = float64(ws.Freq) / float64(total)
		}
		words[id] = ws
	}
	return words
}

// Save writes fwd as {"docID": {"word_data": {...}, "byte_offset": [s, l]}}
// one document per line, in DocID order.
func Save(path string, fwd index.ForwardIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating forward index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating forward index file: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := encode(w, fwd); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flushing forward index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing forward index: %w", err)
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, fwd index.ForwardIndex) error {
	ids := make([]index.DocID, 0, len(fwd))
	for id := range fwd {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for i, id := range ids {
		doc, err := json.Marshal(fwd[id])
		if err != nil {
			return fmt.Errorf("encoding doc %d: %w", id, err)
		}
		sep := ",\n"
		if i == 0 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "%s%q: %s", sep, id.String(), doc); err != nil {
			return fmt.Errorf("writing forward index: %w", err)
		}
	}
	_, err := io.WriteString(w, "\n}\n")
	return err
}
