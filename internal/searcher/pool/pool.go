// Package pool provides a fixed-size worker pool shared by every query of a
// service, so barrel I/O concurrency does not grow with request volume.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrClosed = errors.New("worker pool closed")

// Pool runs submitted tasks on a fixed set of goroutines.
type Pool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	size   int
}

// New starts size workers. size is clamped to at least 1.
func New(size int) *Pool {
	size = max(size, 1)
	p := &Pool{
		tasks: make(chan func()),
		size:  size,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	slog.Default().With("component", "worker-pool").Debug("worker pool started", "size", size)
	return p
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit hands task to an idle worker, waiting until one is free or ctx ends.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
