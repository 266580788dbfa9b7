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
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/PelionIoT/regionsync/ingest"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/syncerr"
	"github.com/PelionIoT/regionsync/util"
)

// RegionSender delivers a single operation to a single region.
type RegionSender interface {
	Send(ctx context.Context, targetRegion string, baseURL string, operation *ingest.IncomingOperation) (ingest.Result, error)
}

// Dispatcher delivers operations from the log to every backup region and
// moves them through their status transitions.
type Dispatcher struct {
	config   shared.SyncEngineConfig
	store    *oplog.Store
	sender   RegionSender
	inFlight *util.InFlightSet
	events   *EventBus
}

func NewDispatcher(config shared.SyncEngineConfig, store *oplog.Store, sender RegionSender, events *EventBus) *Dispatcher {
	return &Dispatcher{
		config:   config.WithDefaults(),
		store:    store,
		sender:   sender,
		inFlight: util.NewInFlightSet(),
		events:   events,
	}
}

// InFlight reports whether the operation is currently being dispatched by
// this process.
func (dispatcher *Dispatcher) InFlight(operationID string) bool {
	return dispatcher.inFlight.Has(operationID)
}

// Dispatch attempts delivery of the operation to every backup region and
// returns true only if all of them acknowledged it. An operation that is
// already being dispatched by this process is reported as delivered
// without further work. Cancelling ctx abandons the attempt without
// counting it against the retry limit.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, operationID string) (bool, error) {
	if !dispatcher.inFlight.TryAdd(operationID) {
		Log.Debugf("Operation %s is already being dispatched", operationID)
		prometheusRecordDispatch("in_flight")

		return true, nil
	}

	defer dispatcher.inFlight.Remove(operationID)

	operation, err := dispatcher.store.Get(ctx, operationID)

	if err == syncerr.ENotFound {
		Log.Warningf("Operation %s expired before it could be delivered. Removing it from the queue", operationID)
		prometheusRecordDispatch("expired")

		return false, dispatcher.store.Dequeue(ctx, operationID)
	}

	if err != nil {
		return false, err
	}

	if operation.Status.Terminal() {
		prometheusRecordDispatch("terminal")

		return operation.Status == oplog.StatusCompleted, dispatcher.store.Dequeue(ctx, operationID)
	}

	if operation.RetryCount >= dispatcher.config.MaxRetries {
		return false, dispatcher.fail(ctx, operation)
	}

	if operation.Status != oplog.StatusProcessing {
		if err := dispatcher.store.Transition(ctx, operation, oplog.StatusProcessing); err != nil {
			return false, err
		}
	}

	results, failures := dispatcher.deliver(ctx, operation)

	if ctx.Err() != nil {
		Log.Infof("Dispatch of operation %s was cancelled. It stays queued", operationID)
		prometheusRecordDispatch("cancelled")

		return false, ctx.Err()
	}

	operation.RegionResults = results

	if len(failures) == 0 {
		operation.LastError = ""

		if err := dispatcher.store.Transition(ctx, operation, oplog.StatusCompleted); err != nil {
			return false, err
		}

		if err := dispatcher.store.Dequeue(ctx, operationID); err != nil {
			return false, err
		}

		Log.Debugf("Operation %s delivered to all %d backup regions", operationID, len(results))
		prometheusRecordDispatch("completed")
		dispatcher.events.Publish(operationEvent(operation))

		return true, nil
	}

	operation.RetryCount++
	operation.LastError = strings.Join(failures, "; ")

	if operation.RetryCount >= dispatcher.config.MaxRetries {
		return false, dispatcher.fail(ctx, operation)
	}

	if err := dispatcher.store.Transition(ctx, operation, oplog.StatusRetry); err != nil {
		return false, err
	}

	Log.Warningf("Operation %s failed attempt %d of %d: %s", operationID, operation.RetryCount, dispatcher.config.MaxRetries, operation.LastError)
	prometheusRecordDispatch("retry")
	dispatcher.events.Publish(operationEvent(operation))

	return false, nil
}

// deliver sends the operation to every backup region concurrently and
// returns the per region outcome plus a description of each failure.
func (dispatcher *Dispatcher) deliver(ctx context.Context, operation *oplog.Operation) (map[string]bool, []string) {
	var g errgroup.Group
	var mu sync.Mutex

	message := ingest.FromOperation(operation)
	results := make(map[string]bool, len(dispatcher.config.BackupRegions))
	failures := []string{}

	for _, region := range dispatcher.config.BackupRegions {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, dispatcher.config.TransportTimeout)
			defer cancel()

			_, err := dispatcher.sender.Send(sendCtx, region.Code, region.URL, message)

			mu.Lock()
			defer mu.Unlock()

			results[region.Code] = err == nil
			prometheusRecordDelivery(region.Code, err == nil)

			if err != nil {
				Log.Warningf("Delivery of operation %s to region %s failed: %v", operation.ID, region.Code, err)
				failures = append(failures, fmt.Sprintf("%s: %v", region.Code, err))
			}

			return nil
		})
	}

	g.Wait()
	sort.Strings(failures)

	return results, failures
}

func (dispatcher *Dispatcher) fail(ctx context.Context, operation *oplog.Operation) error {
	if operation.LastError == "" {
		operation.LastError = syncerr.ERetriesExhausted.Error()
	}

	if err := dispatcher.store.Transition(ctx, operation, oplog.StatusFailed); err != nil {
		return err
	}

	Log.Errorf("Operation %s on %s:%s failed permanently after %d attempts: %s", operation.ID, operation.Table, operation.RecordID, operation.RetryCount, operation.LastError)
	prometheusRecordDispatch("failed")
	dispatcher.events.Publish(operationEvent(operation))

	return dispatcher.store.Dequeue(ctx, operation.ID)
}
