package replication

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	. "github.com/PelionIoT/regionsync/logging"
)

type Job func(ctx context.Context) error

// Pool runs submitted jobs on a fixed number of workers. At most queueSize
// jobs wait for a worker. Submission never blocks and errors returned by
// jobs are delivered on Errors.
type Pool struct {
	group   errgroup.Group
	workers *semaphore.Weighted
	errors  chan error
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers int, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers: semaphore.NewWeighted(int64(workers)),
		errors:  make(chan error, queueSize+workers),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.group.SetLimit(workers + queueSize)

	return pool
}

func (pool *Pool) run(job Job) func() error {
	return func() error {
		if err := pool.workers.Acquire(pool.ctx, 1); err != nil {
			return nil
		}

		defer pool.workers.Release(1)

		if pool.ctx.Err() != nil {
			return nil
		}

		if err := job(pool.ctx); err != nil {
			select {
			case pool.errors <- err:
			default:
				Log.Warningf("Dropping worker pool error: %v", err)
			}
		}

		return nil
	}
}

// Submit queues job and reports whether it was accepted. A full queue or a
// stopped pool rejects the job.
func (pool *Pool) Submit(job Job) bool {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if pool.stopped {
		return false
	}

	return pool.group.TryGo(pool.run(job))
}

func (pool *Pool) Errors() <-chan error {
	return pool.errors
}

// Stop cancels running jobs, discards queued ones and waits for them to
// return. The Errors channel is closed once they have.
func (pool *Pool) Stop() {
	pool.mu.Lock()

	if pool.stopped {
		pool.mu.Unlock()

		return
	}

	pool.stopped = true
	pool.cancel()
	pool.mu.Unlock()

	pool.group.Wait()
	close(pool.errors)
}
