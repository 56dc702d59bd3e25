// Package worker runs background side effects (finalization, report delivery)
// on a bounded number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when a task is submitted after Close.
var ErrClosed = errors.New("worker: pool closed")

// Task is one unit of background work.
type Task func(ctx context.Context) error

// Observer is called once per finished task.
type Observer func(name string, elapsed time.Duration, err error)

type Option func(*Pool)

// WithTimeout bounds each task's runtime. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

func WithObserver(o Observer) Option {
	return func(p *Pool) { p.observe = o }
}

type Pool struct {
	sem     *semaphore.Weighted
	running atomic.Int64
	timeout time.Duration
	observe Observer

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a pool running at most size tasks at once.
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}
	base, cancel := context.WithCancel(context.Background())
	p := &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		base:   base,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Go schedules fn without waiting. The task context is detached from any
// request and is cancelled only by its timeout or a forced Close.
func (p *Pool) Go(name string, fn Task) error {
	if err := p.track(); err != nil {
		return err
	}
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.base, 1); err != nil {
			p.finish(name, 0, fmt.Errorf("acquire slot: %w", err))
			return
		}
		defer p.sem.Release(1)
		p.exec(p.base, name, fn)
	}()
	return nil
}

// Run executes fn on the pool and waits for it to finish.
func (p *Pool) Run(ctx context.Context, name string, fn Task) error {
	if err := p.track(); err != nil {
		return err
	}
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}
	defer p.sem.Release(1)
	return p.exec(ctx, name, fn)
}

// Close stops accepting tasks and waits for running ones. If ctx ends first,
// outstanding tasks are cancelled and ctx's error is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Busy reports how many tasks are running.
func (p *Pool) Busy() int {
	return int(p.running.Load())
}

func (p *Pool) track() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	return nil
}

func (p *Pool) exec(ctx context.Context, name string, fn Task) (err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.running.Add(1)
	started := time.Now()
	defer func() {
		p.running.Add(-1)
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		p.finish(name, time.Since(started), err)
	}()
	return fn(ctx)
}

func (p *Pool) finish(name string, elapsed time.Duration, err error) {
	if err != nil {
		slog.Error("background task failed", "task", name, "elapsed", elapsed, "error", err)
	} else {
		slog.Debug("background task done", "task", name, "elapsed", elapsed)
	}
	if p.observe != nil {
		p.observe(name, elapsed, err)
	}
}
