// Package tasks runs background work detached from request lifecycles.
// Pipeline runs triggered over HTTP return 202 immediately; the run itself
// executes here, bounded so a burst of manual triggers cannot pile up
// unbounded goroutines. Shutdown drains in-flight work before cancelling it.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrShuttingDown is returned when new work arrives after Shutdown.
	ErrShuttingDown = errors.New("task group is shutting down")
	// ErrSaturated is returned by TryGo when every slot is occupied.
	ErrSaturated = errors.New("task group is at capacity")
)

// Group executes named background tasks with bounded concurrency.
type Group struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewGroup creates a Group allowing at most maxConcurrent simultaneous tasks.
func NewGroup(maxConcurrent int, logger *slog.Logger) *Group {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// TryGo starts fn on a free slot, or returns ErrSaturated without blocking.
// The task runs until completion or until Shutdown's grace period expires.
func (g *Group) TryGo(name string, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrShuttingDown
	}
	if !g.sem.TryAcquire(1) {
		g.mu.Unlock()
		return ErrSaturated
	}
	g.wg.Add(1)
	g.mu.Unlock()

	g.launch(name, fn)
	return nil
}

// Go starts fn, blocking until a slot frees up or ctx is done.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrShuttingDown
	}
	g.mu.Unlock()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.sem.Release(1)
		return ErrShuttingDown
	}
	g.wg.Add(1)
	g.mu.Unlock()

	g.launch(name, fn)
	return nil
}

func (g *Group) launch(name string, fn func(ctx context.Context) error) {
	g.inFlight.Add(1)
	go func() {
		defer func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
			g.wg.Done()
		}()
		started := time.Now()
		if err := fn(g.baseCtx); err != nil {
			g.logger.Error("background task failed",
				slog.String("task", name),
				slog.Duration("elapsed", time.Since(started)),
				slog.String("error", err.Error()),
			)
			return
		}
		g.logger.Debug("background task complete",
			slog.String("task", name),
			slog.Duration("elapsed", time.Since(started)),
		)
	}()
}

// InFlight reports how many tasks are currently executing.
func (g *Group) InFlight() int {
	return int(g.inFlight.Load())
}

// Shutdown stops accepting new tasks and waits for in-flight ones. When ctx
// expires first, remaining tasks are cancelled and ctx.Err is returned.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		g.wg.Wait()
		return ctx.Err()
	}
}
