package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// ErrPoolClosed is returned by Acquire after the pool has been closed.
var ErrPoolClosed = errors.New("engine pool is closed")

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Size          int
	InUse         int
	TotalAcquired int64
	TotalReleased int64
}

// enginePool hands out a fixed set of engines loaded at startup.
type enginePool struct {
	engines chan Engine
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	stats  PoolStats
}

func newEnginePool(engines []Engine) *enginePool {
	pool := &enginePool{
		engines: make(chan Engine, len(engines)),
		done:    make(chan struct{}),
		stats:   PoolStats{Size: len(engines)},
	}
	for _, e := range engines {
		pool.engines <- e
	}
	return pool
}

// Acquire blocks until an engine is free, the context ends, or the pool is closed.
func (p *enginePool) Acquire(ctx context.Context) (Engine, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case engine := <-p.engines:
		p.mu.Lock()
		p.stats.InUse++
		p.stats.TotalAcquired++
		p.mu.Unlock()
		return engine, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns an engine obtained from Acquire.
func (p *enginePool) Release(engine Engine) {
	p.mu.Lock()
	p.stats.InUse--
	p.stats.TotalReleased++
	p.mu.Unlock()

	p.engines <- engine
}

func (p *enginePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close stops handing out engines, waits for held ones to come back and closes
// them. Engines still held when ctx ends are left open so a running forward
// pass never sees a freed network; the error reports how many were skipped.
func (p *enginePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	size := p.stats.Size
	p.mu.Unlock()

	var err error
	for drained := 0; drained < size; drained++ {
		select {
		case engine := <-p.engines:
			err = multierr.Append(err, engine.Close())
		case <-ctx.Done():
			return multierr.Append(err, fmt.Errorf("%d engine(s) still in use, not closed: %w", size-drained, ctx.Err()))
		}
	}
	return err
}
