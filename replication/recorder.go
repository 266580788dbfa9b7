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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/syncerr"
	"github.com/PelionIoT/regionsync/util"
)

type recordOptions struct {
	priority oplog.Priority
}

type RecordOption func(*recordOptions)

// WithPriority sets the operation priority. High priority operations are
// dispatched right away in addition to being queued.
func WithPriority(priority oplog.Priority) RecordOption {
	return func(options *recordOptions) {
		options.priority = priority
	}
}

// Recorder is called by local write paths to append operations to the log.
type Recorder struct {
	config     shared.SyncEngineConfig
	store      *oplog.Store
	dispatcher *Dispatcher
	pool       *Pool
	now        func() time.Time
}

// NewRecorder creates a recorder. pool may be nil, in which case high
// priority operations wait for the next batch like any other.
func NewRecorder(config shared.SyncEngineConfig, store *oplog.Store, dispatcher *Dispatcher, pool *Pool) *Recorder {
	recorder := &Recorder{
		config:     config,
		store:      store,
		dispatcher: dispatcher,
		pool:       pool,
		now:        time.Now,
	}

	if pool != nil {
		go recorder.consumePoolErrors()
	}

	return recorder
}

func (recorder *Recorder) consumePoolErrors() {
	for err := range recorder.pool.Errors() {
		Log.Warningf("Immediate dispatch failed: %v", err)
		prometheusImmediateDispatchErrors.Inc()
	}
}

// Record appends an operation for the given row to the log and returns its
// id. It returns an empty id and no error when no backup regions are
// configured.
func (recorder *Recorder) Record(ctx context.Context, table string, operationType oplog.Type, payload oplog.Payload, recordID string, options ...RecordOption) (string, error) {
	if !recorder.config.ReplicationEnabled() {
		return "", nil
	}

	if table == "" || recordID == "" {
		return "", fmt.Errorf("table and record id are required: %w", syncerr.EValidation)
	}

	if !operationType.Valid() {
		return "", fmt.Errorf("operation type %q is not one of insert, update or delete: %w", operationType, syncerr.EValidation)
	}

	if _, _, err := payload.ParseDataVersion(); err != nil {
		return "", fmt.Errorf("%v: %w", err, syncerr.EValidation)
	}

	recordOptions := recordOptions{priority: oplog.PriorityNormal}

	for _, option := range options {
		option(&recordOptions)
	}

	now := recorder.now()
	operation := &oplog.Operation{
		ID:           util.UUID(),
		Table:        table,
		Type:         operationType,
		RecordID:     recordID,
		Data:         payload.As(operationType),
		SourceRegion: recorder.config.CurrentRegion,
		CreatedAt:    now,
		UpdatedAt:    now,
		Status:       oplog.StatusPending,
		RetryCount:   0,
		Priority:     recordOptions.priority,
	}

	if err := recorder.store.Append(ctx, operation); err != nil {
		return "", err
	}

	prometheusOperationsRecorded.With(prometheus.Labels{"table": table, "operation_type": string(operationType)}).Inc()
	Log.Debugf("Recorded %s of %s:%s as operation %s", operationType, table, recordID, operation.ID)

	if operation.Priority == oplog.PriorityHigh {
		recorder.dispatchNow(operation.ID)
	}

	return operation.ID, nil
}

func (recorder *Recorder) dispatchNow(operationID string) {
	if recorder.pool == nil || recorder.dispatcher == nil {
		return
	}

	if !recorder.config.IsPrimary() {
		return
	}

	submitted := recorder.pool.Submit(func(ctx context.Context) error {
		delivered, err := recorder.dispatcher.Dispatch(ctx, operationID)

		if err != nil {
			return fmt.Errorf("operation %s: %v", operationID, err)
		}

		if !delivered {
			return fmt.Errorf("operation %s was not acknowledged by every backup region", operationID)
		}

		return nil
	})

	if !submitted {
		Log.Warningf("Worker pool is full. Operation %s will be sent with the next batch", operationID)
	}
}
