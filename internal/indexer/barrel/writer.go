package barrel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// FileName returns the file name of barrel id.
func FileName(id int) string {
	return fmt.Sprintf("barrel_%d.msgpack", id)
}

// Writer persists barrels into a directory.
type Writer struct {
	dir         string
	compression string
	parallelism int
}

func NewWriter(dir, compression string, parallelism int) *Writer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Writer{dir: dir, compression: compression, parallelism: parallelism}
}

// WriteAll writes barrels[i] to barrel_i. Each file is written to a
// temporary name and renamed, so a reader never sees a partial barrel.
func (w *Writer) WriteAll(ctx context.Context, barrels []Barrel) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating barrel directory: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for id, b := range barrels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.write(id, b)
		})
	}
	return g.Wait()
}

func (w *Writer) write(id int, b Barrel) error {
	data, err := Encode(b, w.compression)
	if err != nil {
		return fmt.Errorf("barrel %d: %w", id, err)
	}
	final := filepath.Join(w.dir, FileName(id))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing barrel %d: %w", id, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming barrel %d: %w", id, err)
	}
	return nil
}
