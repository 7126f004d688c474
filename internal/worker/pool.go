// Package worker runs blocking and CPU-bound work on a fixed set of goroutines so
// interaction handling never waits behind it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// PanicError is returned by Do when the submitted function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Pool is a fixed number of goroutines consuming tasks from an unbuffered channel, so a
// submission waits until a worker is free.
type Pool struct {
	name      string
	tasks     chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewPool starts workers goroutines. A non-positive count starts one.
func NewPool(name string, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"pool", name,
			"specified_count", workers,
			"default_count", 1)
		workers = 1
	}
	p := &Pool{
		name:   name,
		tasks:  make(chan func()),
		done:   make(chan struct{}),
		logger: logger,
	}
	for i := range workers {
		p.wg.Add(1)
		go p.run(i + 1)
	}
	logger.Debug("worker pool started", "pool", name, "workers", workers)
	return p
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case task := <-p.tasks:
			p.logger.Debug("worker picked task", "pool", p.name, "worker", id)
			task()
		}
	}
}

// Close stops accepting work and waits for running tasks to return.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

type outcome[T any] struct {
	value T
	err   error
}

// Do runs fn on a pool worker and waits for its result. A panic inside fn is returned
// as a *PanicError. If ctx ends first Do returns ctx.Err(); fn, if already started,
// runs to completion and its result is discarded.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	result := make(chan outcome[T], 1)
	task := func() {
		var out outcome[T]
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("recovered panic in worker task", "pool", p.name, "panic", r)
				out = outcome[T]{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
			result <- out
		}()
		out.value, out.err = fn()
	}

	select {
	case p.tasks <- task:
	case <-p.done:
		return zero, ErrPoolClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case out := <-result:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
