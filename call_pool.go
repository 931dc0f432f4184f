// call_pool.go: dedicated worker goroutines for foreign calls
//
// Foreign calls block the calling OS thread for as long as the plugin runs.
// They are executed on a fixed set of workers, each locked to its own thread,
// so that slow plugins never occupy the goroutines serving HTTP.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// CallPool runs submitted jobs on a fixed number of workers.
type CallPool struct {
	jobs      chan func()
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	size   int
	busy   atomic.Int64
	logger Logger
}

// NewCallPool starts workers goroutines. A non-positive count uses GOMAXPROCS.
func NewCallPool(workers int, logger Logger) *CallPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &CallPool{
		jobs:    make(chan func()),
		closing: make(chan struct{}),
		size:    workers,
		logger:  NewLogger(logger),
	}

	p.logger.Debug("Starting call pool", "workers", workers)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *CallPool) worker(workerID int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case job := <-p.jobs:
			p.run(workerID, job)
		case <-p.closing:
			p.logger.Debug("Call pool worker finished", "worker_id", workerID)
			return
		}
	}
}

func (p *CallPool) run(workerID int, job func()) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer withStackRecover(p.logger.With("worker_id", workerID))()
	job()
}

// Submit hands job to an idle worker, waiting for one until ctx is done.
// Once Submit returns nil the job will run to completion even if ctx is
// cancelled afterwards. A Submit still waiting when the pool closes returns
// a PoolClosed error.
func (p *CallPool) Submit(ctx context.Context, job func()) error {
	select {
	case <-p.closing:
		return NewPoolClosedError()
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.closing:
		return NewPoolClosedError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for running jobs to finish. It is safe
// to call more than once.
func (p *CallPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
	})
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *CallPool) Size() int {
	return p.size
}

// Busy returns the number of workers currently running a job.
func (p *CallPool) Busy() int64 {
	return p.busy.Load()
}
