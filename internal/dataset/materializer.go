package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

// ErrClosed is returned by Fetch once the materializer has been closed.
var ErrClosed = errors.New("materializer closed")

// Materializer reads individual records out of the dataset by byte offset.
// It keeps a fixed pool of read-only file handles; Fetch borrows one for the
// duration of a single ReadAt.
type Materializer struct {
	path    string
	size    int64
	handles chan *os.File
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	logger  *slog.Logger
}

// OpenMaterializer opens size read-only handles on the dataset at path.
func OpenMaterializer(path string, size int) (*Materializer, error) {
	if size < 1 {
		size = 1
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	m := &Materializer{
		path:    path,
		size:    info.Size(),
		handles: make(chan *os.File, size),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "materializer"),
	}
	for i := 0; i < size; i++ {
		f, err := os.Open(path)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("%w: dataset %s: %v", apperrors.ErrArtifactMissing, path, err)
		}
		m.handles <- f
	}
	return m, nil
}

// Fetch reads and parses exactly the record at off. Offsets that do not lie
// inside the dataset are rejected before any read.
func (m *Materializer) Fetch(ctx context.Context, off ByteOffset) (Record, error) {
	if off.Start() < 0 || off.Length() <= 0 || off.Start() > m.size || off.Length() > m.size-off.Start() {
		return Record{}, fmt.Errorf("%w: offset %v outside dataset of %d bytes", apperrors.ErrMalformedRecord, off, m.size)
	}
	f, err := m.acquire(ctx)
	if err != nil {
		return Record{}, err
	}
	buf := make([]byte, off.Length())
	n, err := f.ReadAt(buf, off.Start())
	m.release(f)
	if err != nil && !(err == io.EOF && int64(n) == off.Length()) {
		return Record{}, fmt.Errorf("%w: reading %v: %v", apperrors.ErrMalformedRecord, off, err)
	}
	return ParseRecord(buf)
}

func (m *Materializer) acquire(ctx context.Context) (*os.File, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}
	select {
	case f := <-m.handles:
		return f, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns f to the pool, or closes it when the pool is gone.
func (m *Materializer) release(f *os.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if err := f.Close(); err != nil {
			m.logger.Warn("closing dataset handle", "path", m.path, "error", err)
		}
		return
	}
	m.handles <- f
}

// Close releases every idle handle. Handles still borrowed by in-flight
// fetches are closed as they are returned, and later fetches fail with
// ErrClosed.
func (m *Materializer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	var firstErr error
	for {
		select {
		case f := <-m.handles:
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
