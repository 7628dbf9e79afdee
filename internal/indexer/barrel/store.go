package barrel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
)

// Store loads barrels from a directory. Decoded barrels stay resident for
// the life of the Store; they are never mutated after load, so callers may
// read them concurrently.
type Store struct {
	dir        string
	numBarrels int
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.RWMutex
	resident map[int]Barrel
	group    singleflight.Group
}

// NewStore creates a Store over dir. m may be nil.
func NewStore(dir string, numBarrels int, m *metrics.Metrics) *Store {
	return &Store{
		dir:        dir,
		numBarrels: numBarrels,
		metrics:    m,
		logger:     slog.Default().With("component", "barrel-store", "dir", dir),
		resident:   make(map[int]Barrel),
	}
}

func (s *Store) NumBarrels() int {
	return s.numBarrels
}

func (s *Store) Dir() string {
	return s.dir
}

// Load returns barrel id. A missing barrel file yields an empty barrel and a
// warning. Concurrent loads of the same barrel share one read. If ctx ends
// first, Load returns ctx.Err() and the read finishes in the background.
func (s *Store) Load(ctx context.Context, id int) (Barrel, error) {
	if id < 0 || id >= s.numBarrels {
		return nil, fmt.Errorf("barrel %d out of range [0, %d)", id, s.numBarrels)
	}
	s.mu.RLock()
	b, ok := s.resident[id]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	ch := s.group.DoChan(strconv.Itoa(id), func() (any, error) {
		return s.read(id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Barrel), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) read(id int) (Barrel, error) {
	start := time.Now()
	path := filepath.Join(s.dir, FileName(id))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("barrel file missing, treating as empty", "barrel_id", id)
		s.observe("missing", start)
		return Barrel{}, nil
	}
	if err != nil {
		s.observe("error", start)
		return nil, fmt.Errorf("reading barrel %d: %w", id, err)
	}
	b, err := Decode(data)
	if err != nil {
		s.observe("error", start)
		return nil, fmt.Errorf("barrel %d: %w", id, err)
	}
	s.observe("ok", start)

	s.mu.Lock()
	s.resident[id] = b
	n := len(s.resident)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.BarrelsResident.Set(float64(n))
	}
	s.logger.Debug("barrel loaded", "barrel_id", id, "words", len(b), "bytes", len(data), "duration", time.Since(start))
	return b, nil
}

func (s *Store) observe(status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.BarrelLoadsTotal.WithLabelValues(status).Inc()
	s.metrics.BarrelLoadDuration.Observe(time.Since(start).Seconds())
}

// Preload loads every barrel with the given parallelism.
func (s *Store) Preload(ctx context.Context, parallelism int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallelism, 1))
	for id := 0; id < s.numBarrels; id++ {
		g.Go(func() error {
			_, err := s.Load(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("preloading barrels: %w", err)
	}
	s.logger.Info("barrels preloaded", "count", s.numBarrels)
	return nil
}

// Resident reports how many barrels are decoded in memory.
func (s *Store) Resident() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resident)
}
