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
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PelionIoT/regionsync/lease"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
)

const BatchLockKey = "sync:lock:batch"

const (
	ReasonNotPrimary = "not primary"
	ReasonLockHeld   = "lock held"
)

type CoordinatorState string

const (
	StateIdle    CoordinatorState = "idle"
	StateRunning CoordinatorState = "running"
	StateError   CoordinatorState = "error"
)

type BatchResult struct {
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	// Milliseconds
	Duration int64 `json:"duration_ms"`
}

// CoordinatorStatus is persisted after every state change so that any
// process sharing the store can report it.
type CoordinatorStatus struct {
	State              CoordinatorState `json:"status"`
	LastSyncAttempt    *time.Time       `json:"last_sync_attempt,omitempty"`
	LastSyncCompletion *time.Time       `json:"last_sync_completion,omitempty"`
	LastError          string           `json:"last_error,omitempty"`
	LastResult         *BatchResult     `json:"last_result,omitempty"`
}

// Coordinator periodically drains the pending queue on the primary region.
// At most one coordinator across all processes sharing the store runs a
// batch at any time.
type Coordinator struct {
	config     shared.SyncEngineConfig
	store      *oplog.Store
	leases     *lease.Manager
	dispatcher *Dispatcher
	events     *EventBus
	mu         sync.Mutex
	stop       chan struct{}
	wg         sync.WaitGroup
}

func NewCoordinator(config shared.SyncEngineConfig, store *oplog.Store, leases *lease.Manager, dispatcher *Dispatcher, events *EventBus) *Coordinator {
	return &Coordinator{
		config:     config.WithDefaults(),
		store:      store,
		leases:     leases,
		dispatcher: dispatcher,
		events:     events,
	}
}

func (coordinator *Coordinator) loadStatus(ctx context.Context) CoordinatorStatus {
	status := CoordinatorStatus{State: StateIdle}

	if _, err := coordinator.store.LoadState(ctx, &status); err != nil {
		Log.Warningf("Unable to load coordinator status: %v", err)
	}

	return status
}

func (coordinator *Coordinator) saveStatus(ctx context.Context, status CoordinatorStatus) {
	if err := coordinator.store.SaveState(ctx, status); err != nil {
		Log.Warningf("Unable to save coordinator status: %v", err)
	}
}

// RunOnce runs a single batch cycle. It is skipped without error on
// non-primary nodes and when another process holds the batch lease.
func (coordinator *Coordinator) RunOnce(ctx context.Context) (BatchResult, error) {
	if !coordinator.config.IsPrimary() {
		prometheusRecordBatch("skipped")

		return BatchResult{Skipped: true, Reason: ReasonNotPrimary}, nil
	}

	batchLease, err := coordinator.leases.Acquire(ctx, BatchLockKey, coordinator.config.LockTTL)

	if err == lease.ErrLeaseHeld {
		Log.Debugf("Batch lease is held by another process. Skipping this cycle")
		prometheusRecordBatch("skipped")

		return BatchResult{Skipped: true, Reason: ReasonLockHeld}, nil
	}

	if err != nil {
		Log.Errorf("Unable to acquire the batch lease: %v", err)
		prometheusRecordBatch("error")

		return BatchResult{}, err
	}

	defer func() {
		if _, err := batchLease.Release(context.Background()); err != nil {
			Log.Warningf("Unable to release the batch lease: %v", err)
		}
	}()

	started := time.Now()
	status := coordinator.loadStatus(ctx)
	status.State = StateRunning
	status.LastSyncAttempt = &started
	coordinator.saveStatus(ctx, status)

	result, err := coordinator.drain(ctx, batchLease)

	completed := time.Now()
	result.Duration = int64(completed.Sub(started) / time.Millisecond)
	status.LastSyncCompletion = &completed
	status.LastResult = &result
	status.State = StateIdle
	status.LastError = ""

	if err != nil {
		status.State = StateError
		status.LastError = err.Error()
		Log.Errorf("Batch cycle failed after %d of %d operations: %v", result.Succeeded+result.Failed, result.Total, err)
		prometheusRecordBatch("error")
	} else {
		Log.Infof("Batch cycle finished: %d operations, %d delivered, %d not delivered", result.Total, result.Succeeded, result.Failed)
		prometheusRecordBatch("completed")
	}

	coordinator.saveStatus(context.Background(), status)
	prometheusBatchDuration.Observe(completed.Sub(started).Seconds())

	if depth, err := coordinator.store.QueueDepth(context.Background()); err == nil {
		prometheusQueueDepth.Set(float64(depth))
	}

	coordinator.events.Publish(Event{Type: EventBatch, Batch: &result, Error: status.LastError})

	return result, err
}

func (coordinator *Coordinator) drain(ctx context.Context, batchLease *lease.Lease) (BatchResult, error) {
	var result BatchResult

	ids, err := coordinator.store.Pending(ctx)

	if err != nil {
		return result, err
	}

	result.Total = len(ids)
	batchSize := coordinator.config.BatchSize

	for start := 0; start < len(ids); start += batchSize {
		if start > 0 && batchLease.NeedsRenewal() {
			if err := batchLease.Renew(ctx); err != nil {
				return result, fmt.Errorf("batch lease lost: %v", err)
			}
		}

		end := start + batchSize

		if end > len(ids) {
			end = len(ids)
		}

		var g errgroup.Group
		var mu sync.Mutex

		g.SetLimit(batchSize)

		for _, id := range ids[start:end] {
			g.Go(func() error {
				delivered, err := coordinator.dispatcher.Dispatch(ctx, id)

				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					Log.Warningf("Dispatch of operation %s failed: %v", id, err)
				}

				mu.Lock()
				defer mu.Unlock()

				if delivered {
					result.Succeeded++
				} else {
					result.Failed++
				}

				return nil
			})
		}

		g.Wait()

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, nil
}

// Start runs a batch after the warm up delay and then once every sync
// interval until Stop is called or ctx is cancelled. It does nothing on
// non-primary nodes.
func (coordinator *Coordinator) Start(ctx context.Context) {
	if !coordinator.config.IsPrimary() {
		Log.Infof("Region %s is not the primary region %s. The batch coordinator will not run", coordinator.config.CurrentRegion, coordinator.config.PrimaryRegion)

		return
	}

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	if coordinator.stop != nil {
		return
	}

	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(ctx)
	coordinator.stop = stop
	coordinator.wg.Add(1)

	go func() {
		defer coordinator.wg.Done()
		defer cancel()

		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		delay := coordinator.config.WarmupDelay

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				coordinator.RunOnce(ctx)
			}

			delay = coordinator.config.SyncInterval
		}
	}()
}

func (coordinator *Coordinator) Stop() {
	coordinator.mu.Lock()
	stop := coordinator.stop
	coordinator.stop = nil
	coordinator.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	coordinator.wg.Wait()
}
