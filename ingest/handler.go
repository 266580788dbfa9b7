package ingest

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
	"regexp"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PelionIoT/regionsync/datastore"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/syncerr"
	"github.com/PelionIoT/regionsync/util"
)

const (
	MessageApplied          = "applied"
	MessageAlreadyProcessed = "already processed"
	MessageStaleVersion     = "stale version"
)

var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

var (
	prometheusIngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "ingest_total",
			Help:      "Counts incoming operations by how they were handled",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(prometheusIngestTotal)
}

// RecordIngestResult counts an incoming operation handled with the given
// result (applied, skipped, invalid, unauthorized or error).
func RecordIngestResult(result string) {
	prometheusIngestTotal.With(prometheus.Labels{"result": result}).Inc()
}

// Handler applies operations received from the primary region to the
// local datastore at most once per operation and never older than the
// newest version already applied to the same record.
type Handler struct {
	store       *oplog.Store
	datastore   datastore.Datastore
	recordLocks *util.MultiLock
}

func NewHandler(store *oplog.Store, datastore datastore.Datastore) *Handler {
	return &Handler{
		store:       store,
		datastore:   datastore,
		recordLocks: util.NewMultiLock(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), syncerr.EValidation)
}

// Validate checks the operation without touching any store.
func (handler *Handler) Validate(operation *IncomingOperation) error {
	if operation == nil {
		return invalid("operation is empty")
	}

	if operation.OperationID == "" {
		return invalid("operation_id is required")
	}

	if operation.Table == "" {
		return invalid("table is required")
	}

	if !operation.OperationType.Valid() {
		return invalid("operation_type %q is not one of insert, update or delete", operation.OperationType)
	}

	if !recordIDPattern.MatchString(operation.RecordID) {
		return invalid("record_id %q is malformed", operation.RecordID)
	}

	if !datastore.ValidIdentifier(operation.Table) || !handler.datastore.HasTable(operation.Table) {
		return invalid("table %q is not replicated", operation.Table)
	}

	switch operation.OperationType {
	case oplog.TypeInsert, oplog.TypeUpdate:
		if !operation.Data.IsObject() || operation.Data.IsNull() {
			return invalid("%s requires an object payload", operation.OperationType)
		}
	case oplog.TypeDelete:
		if !operation.Data.IsObject() && !operation.Data.IsNull() {
			return invalid("delete payload must be an object or null")
		}
	}

	if operation.Data.IsObject() {
		for column := range operation.Data.Fields {
			if !datastore.ValidIdentifier(column) {
				return invalid("column name %q is not a valid identifier", column)
			}
		}
	}

	if _, _, err := operation.Data.ParseDataVersion(); err != nil {
		return invalid("%v", err)
	}

	return nil
}

func (handler *Handler) ApplyIncoming(ctx context.Context, operation *IncomingOperation) (Result, error) {
	if err := handler.Validate(operation); err != nil {
		RecordIngestResult("invalid")

		return Result{Success: false, Message: err.Error()}, err
	}

	operation.Data = operation.Data.As(operation.OperationType)

	lockKey := []byte(operation.Table + ":" + operation.RecordID)
	handler.recordLocks.Lock(lockKey)
	defer handler.recordLocks.Unlock(lockKey)

	processed, err := handler.store.IsProcessed(ctx, operation.OperationID)

	if err != nil {
		RecordIngestResult("error")

		return Result{Message: err.Error()}, err
	}

	if processed {
		Log.Debugf("Operation %s from %s already processed", operation.OperationID, operation.SourceRegion)
		RecordIngestResult("skipped")

		return Result{Success: true, Skipped: true, Message: MessageAlreadyProcessed}, nil
	}

	version, hasVersion := operation.Data.DataVersion()

	if hasVersion {
		applied, ok, err := handler.store.AppliedVersion(ctx, operation.Table, operation.RecordID)

		if err != nil {
			RecordIngestResult("error")

			return Result{Message: err.Error()}, err
		}

		if ok && applied >= version {
			Log.Infof("Skipping operation %s on %s:%s: version %d is not newer than applied version %d", operation.OperationID, operation.Table, operation.RecordID, version, applied)
			RecordIngestResult("skipped")

			return Result{Success: true, Skipped: true, Message: MessageStaleVersion}, nil
		}
	}

	if err := handler.apply(ctx, operation); err != nil {
		if errors.Is(err, syncerr.EValidation) {
			RecordIngestResult("invalid")

			return Result{Message: err.Error()}, err
		}

		Log.Errorf("Unable to apply %s of %s:%s from operation %s: %v", operation.OperationType, operation.Table, operation.RecordID, operation.OperationID, err)
		RecordIngestResult("error")

		err = fmt.Errorf("%v: %w", err, syncerr.EApply)

		return Result{Message: err.Error()}, err
	}

	if err := handler.store.MarkProcessed(ctx, operation.OperationID); err != nil {
		Log.Warningf("Applied operation %s but could not record it as processed: %v", operation.OperationID, err)
	}

	if hasVersion {
		if _, err := handler.store.RaiseAppliedVersion(ctx, operation.Table, operation.RecordID, version); err != nil {
			Log.Warningf("Applied operation %s but could not record version %d: %v", operation.OperationID, version, err)
		}
	}

	Log.Debugf("Applied %s of %s:%s from operation %s", operation.OperationType, operation.Table, operation.RecordID, operation.OperationID)
	RecordIngestResult("applied")

	return Result{Success: true, Message: MessageApplied}, nil
}

func (handler *Handler) apply(ctx context.Context, operation *IncomingOperation) error {
	switch operation.OperationType {
	case oplog.TypeInsert:
		return handler.datastore.Insert(ctx, operation.Table, operation.RecordID, operation.Data.Fields)
	case oplog.TypeUpdate:
		return handler.datastore.Update(ctx, operation.Table, operation.RecordID, operation.Data.Fields)
	default:
		return handler.datastore.Delete(ctx, operation.Table, operation.RecordID)
	}
}
