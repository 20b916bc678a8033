// Package workerpool provides a persistent pool of goroutines that split
// row ranges of a plane between workers. The pool is created once per
// pipeline and shared by every stage that partitions rows.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.ParallelFor(rows, func(start, end int) {
//	    for r := start; r < end; r++ {
//	        processRow(r)
//	    }
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a reusable set of workers. Callers of ParallelFor must not be
// pool workers themselves.
type Pool struct {
	numWorkers int
	workC      chan task
	closeOnce  sync.Once
	closed     atomic.Bool
}

type task struct {
	fn   func()
	done *sync.WaitGroup
}

// New spawns numWorkers workers. If numWorkers <= 0, uses GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan task, numWorkers*2),
	}
	for i := 0; i < numWorkers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	for t := range p.workC {
		t.fn()
		t.done.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close stops the workers once pending work completes. Safe to call twice.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// chunks returns the contiguous [start, end) ranges handed to workers.
func (p *Pool) chunks(n int) [][2]int {
	workers := min(p.numWorkers, n)
	size := (n + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// ParallelFor calls fn over contiguous sub-ranges of [0, n) and blocks until
// every range is done. A nil or closed pool runs fn(0, n) inline.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if p == nil || p.closed.Load() || p.numWorkers == 1 || n == 1 {
		fn(0, n)
		return
	}

	ranges := p.chunks(n)
	var wg sync.WaitGroup
	wg.Add(len(ranges))
	for _, r := range ranges {
		start, end := r[0], r[1]
		p.workC <- task{fn: func() { fn(start, end) }, done: &wg}
	}
	wg.Wait()
}

// ParallelReduce runs fn over sub-ranges of [0, n) and combines the partial
// results in range order with combine.
func ParallelReduce[T any](p *Pool, n int, fn func(start, end int) T, combine func(a, b T) T) T {
	var zero T
	if n <= 0 {
		return zero
	}
	if p == nil || p.closed.Load() || p.numWorkers == 1 || n == 1 {
		return fn(0, n)
	}

	ranges := p.chunks(n)
	partial := make([]T, len(ranges))
	var wg sync.WaitGroup
	wg.Add(len(ranges))
	for i, r := range ranges {
		i, start, end := i, r[0], r[1]
		p.workC <- task{fn: func() { partial[i] = fn(start, end) }, done: &wg}
	}
	wg.Wait()

	acc := partial[0]
	for _, v := range partial[1:] {
		acc = combine(acc, v)
	}
	return acc
}
