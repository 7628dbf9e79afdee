// Package directory maintains the Offset Directory: the WordID to barrel
// mapping the query engine consults instead of scanning barrels.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

// FileName is the directory's file name inside the index data dir.
const FileName = "barrel_offset_index.msgpack"

type entry struct {
	BarrelID int `msgpack:"barrelId"`
}

// Directory is read-only once built or loaded.
type Directory struct {
	barrels map[index.WordID]int
}

// Lookup returns the barrel holding id's postings.
func (d *Directory) Lookup(id index.WordID) (int, bool) {
	b, ok := d.barrels[id]
	return b, ok
}

func (d *Directory) Len() int {
	return len(d.barrels)
}

// Entries returns a copy of the full mapping.
func (d *Directory) Entries() map[index.WordID]int {
	out := make(map[index.WordID]int, len(d.barrels))
	for w, b := range d.barrels {
		out[w] = b
	}
	return out
}

// BuildByScan reads every barrel in store once and records where each word
// lives. A word found in two barrels violates the single-owner invariant and
// fails the build.
func BuildByScan(ctx context.Context, store *barrel.Store) (*Directory, error) {
	d := &Directory{barrels: make(map[index.WordID]int)}
	for id := 0; id < store.NumBarrels(); id++ {
		b, err := store.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scanning barrel %d: %w", id, err)
		}
		for wordID := range b {
			if prev, dup := d.barrels[wordID]; dup {
				return nil, fmt.Errorf("word %d present in barrels %d and %d", wordID, prev, id)
			}
			d.barrels[wordID] = id
		}
	}
	return d, nil
}

// Save writes the directory as msgpack {"wordID": {"barrelId": n}}.
func (d *Directory) Save(path string) error {
	w := make(map[string]entry, len(d.barrels))
	for wordID, b := range d.barrels {
		w[wordID.String()] = entry{BarrelID: b}
	}
	data, err := msgpack.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding offset directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing offset directory: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a directory written by Save. A missing file is reported as
// ErrArtifactMissing.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: offset directory %s", apperrors.ErrArtifactMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading offset directory: %w", err)
	}
	var w map[string]entry
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding offset directory: %w", err)
	}
	d := &Directory{barrels: make(map[index.WordID]int, len(w))}
	for key, e := range w {
		wordID, err := index.ParseWordID(key)
		if err != nil {
			return nil, fmt.Errorf("decoding offset directory: %w", err)
		}
		d.barrels[wordID] = e.BarrelID
	}
	return d, nil
}

// LoadOrRebuild loads the directory at path, or rebuilds it by scanning the
// barrels when the file is absent and writes the result back. This is a
// startup path; it blocks until the scan finishes.
func LoadOrRebuild(ctx context.Context, path string, store *barrel.Store) (*Directory, error) {
	d, err := Load(path)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, apperrors.ErrArtifactMissing) {
		return nil, err
	}
	log := logger.WithComponent("offset-directory")
	log.Warn("offset directory missing, rebuilding from barrels", "path", path, "barrels", store.NumBarrels())
	d, err = BuildByScan(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("rebuilding offset directory: %w", err)
	}
	if err := d.Save(path); err != nil {
		log.Warn("could not persist rebuilt offset directory", "error", err)
	}
	log.Info("offset directory rebuilt", "words", d.Len())
	return d, nil
}
