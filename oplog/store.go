package oplog

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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/PelionIoT/regionsync/kv"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/syncerr"
)

const (
	OperationKeyPrefix = "sync:op:"
	QueueKey           = "sync:queue"
	VersionKeyPrefix   = "sync:version:"
	ProcessedKeyPrefix = "sync:processed:"
	StatusKey          = "sync:status"
)

const (
	DefaultLogRetention    = 24 * time.Hour
	DefaultMarkerRetention = 24 * time.Hour
)

func OperationKey(id string) string {
	return OperationKeyPrefix + id
}

func VersionKey(table, recordID string) string {
	return VersionKeyPrefix + table + ":" + recordID
}

func ProcessedKey(operationID string) string {
	return ProcessedKeyPrefix + operationID
}

type Options struct {
	LogRetention     time.Duration
	MarkerRetention  time.Duration
	// Zero keeps applied versions forever
	VersionRetention time.Duration
}

type Filter struct {
	Status *Status
	Before *time.Time
	Limit  int
}

// Store is the operation log. It keeps every recorded operation for the
// log retention period, the queue of operations still awaiting delivery,
// and on the receiving side the applied version index and processed
// operation markers.
type Store struct {
	kv               kv.Store
	logRetention     time.Duration
	markerRetention  time.Duration
	versionRetention time.Duration
}

func NewStore(store kv.Store, options Options) *Store {
	if options.LogRetention <= 0 {
		options.LogRetention = DefaultLogRetention
	}

	if options.MarkerRetention <= 0 {
		options.MarkerRetention = DefaultMarkerRetention
	}

	return &Store{
		kv:               store,
		logRetention:     options.LogRetention,
		markerRetention:  options.MarkerRetention,
		versionRetention: options.VersionRetention,
	}
}

func (store *Store) KV() kv.Store {
	return store.kv
}

func storageError(action string, err error) error {
	Log.Errorf("Operation store unable to %s: %v", action, err)

	return fmt.Errorf("%s: %v: %w", action, err, syncerr.EStorage)
}

// Append writes a new operation to the log and places it in the queue.
func (store *Store) Append(ctx context.Context, operation *Operation) error {
	encoded, err := json.Marshal(operation)

	if err != nil {
		return err
	}

	if err := store.kv.Set(ctx, OperationKey(operation.ID), encoded, store.logRetention); err != nil {
		return storageError("write operation "+operation.ID, err)
	}

	if err := store.kv.ZAdd(ctx, QueueKey, operation.Score(), operation.ID); err != nil {
		return storageError("enqueue operation "+operation.ID, err)
	}

	return nil
}

func (store *Store) Get(ctx context.Context, id string) (*Operation, error) {
	encoded, err := store.kv.Get(ctx, OperationKey(id))

	if err == kv.ErrNotFound {
		return nil, syncerr.ENotFound
	}

	if err != nil {
		return nil, storageError("read operation "+id, err)
	}

	var operation Operation

	if err := json.Unmarshal(encoded, &operation); err != nil {
		Log.Errorf("Operation %s is not valid JSON: %v", id, err)

		return nil, syncerr.ECorrupted
	}

	return &operation, nil
}

// Update rewrites an existing operation without touching its expiry.
func (store *Store) Update(ctx context.Context, operation *Operation) error {
	operation.UpdatedAt = time.Now()
	encoded, err := json.Marshal(operation)

	if err != nil {
		return err
	}

	if err := store.kv.Set(ctx, OperationKey(operation.ID), encoded, kv.KeepTTL); err != nil {
		return storageError("update operation "+operation.ID, err)
	}

	return nil
}

// Transition moves the operation to a new status and persists it.
func (store *Store) Transition(ctx context.Context, operation *Operation, to Status) error {
	if !CanTransition(operation.Status, to) {
		return fmt.Errorf("operation %s cannot move from %s to %s: %w", operation.ID, operation.Status, to, syncerr.EInvalidTransition)
	}

	previous := operation.Status
	operation.Status = to

	if err := store.Update(ctx, operation); err != nil {
		operation.Status = previous

		return err
	}

	return nil
}

func (store *Store) Dequeue(ctx context.Context, ids ...string) error {
	if err := store.kv.ZRem(ctx, QueueKey, ids...); err != nil {
		return storageError("dequeue operations", err)
	}

	return nil
}

// Pending returns a snapshot of the queue, oldest operation first.
func (store *Store) Pending(ctx context.Context) ([]string, error) {
	ids, err := store.kv.ZRange(ctx, QueueKey, 0, -1)

	if err != nil {
		return nil, storageError("read queue", err)
	}

	return ids, nil
}

func (store *Store) QueueDepth(ctx context.Context) (int64, error) {
	depth, err := store.kv.ZCard(ctx, QueueKey)

	if err != nil {
		return 0, storageError("read queue depth", err)
	}

	return depth, nil
}

// List returns the logged operations matching the filter, newest first.
func (store *Store) List(ctx context.Context, filter Filter) ([]*Operation, error) {
	keys, err := store.kv.Keys(ctx, OperationKeyPrefix)

	if err != nil {
		return nil, storageError("list operations", err)
	}

	operations := make([]*Operation, 0, len(keys))

	for _, key := range keys {
		operation, err := store.Get(ctx, key[len(OperationKeyPrefix):])

		if err == syncerr.ENotFound {
			continue
		}

		if err == syncerr.ECorrupted {
			continue
		}

		if err != nil {
			return nil, err
		}

		if filter.Status != nil && operation.Status != *filter.Status {
			continue
		}

		if filter.Before != nil && !operation.CreatedAt.Before(*filter.Before) {
			continue
		}

		operations = append(operations, operation)
	}

	sort.Slice(operations, func(i, j int) bool {
		return operations[i].CreatedAt.After(operations[j].CreatedAt)
	})

	if filter.Limit > 0 && len(operations) > filter.Limit {
		operations = operations[:filter.Limit]
	}

	return operations, nil
}

func (store *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	operations, err := store.List(ctx, Filter{})

	if err != nil {
		return nil, err
	}

	counts := make(map[Status]int, len(Statuses))

	for _, status := range Statuses {
		counts[status] = 0
	}

	for _, operation := range operations {
		counts[operation.Status]++
	}

	return counts, nil
}

// PurgeFailed permanently deletes failed operations created before cutoff
// along with their queue membership and returns how many were removed.
func (store *Store) PurgeFailed(ctx context.Context, cutoff time.Time) (int, error) {
	failed := StatusFailed
	operations, err := store.List(ctx, Filter{Status: &failed, Before: &cutoff})

	if err != nil {
		return 0, err
	}

	if len(operations) == 0 {
		return 0, nil
	}

	keys := make([]string, len(operations))
	ids := make([]string, len(operations))

	for i, operation := range operations {
		keys[i] = OperationKey(operation.ID)
		ids[i] = operation.ID
	}

	if err := store.Dequeue(ctx, ids...); err != nil {
		return 0, err
	}

	if err := store.kv.Delete(ctx, keys...); err != nil {
		return 0, storageError("delete failed operations", err)
	}

	Log.Infof("Purged %d failed operations created before %s", len(operations), cutoff.Format(time.RFC3339))

	return len(operations), nil
}

// AppliedVersion returns the highest data version applied for a record.
func (store *Store) AppliedVersion(ctx context.Context, table, recordID string) (int64, bool, error) {
	encoded, err := store.kv.Get(ctx, VersionKey(table, recordID))

	if err == kv.ErrNotFound {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, storageError("read applied version", err)
	}

	version, err := strconv.ParseInt(string(encoded), 10, 64)

	if err != nil {
		Log.Errorf("Applied version for %s:%s is not an integer: %q", table, recordID, encoded)

		return 0, false, syncerr.ECorrupted
	}

	return version, true, nil
}

// RaiseAppliedVersion stores version for the record unless an equal or
// higher version is already stored. It reports whether the stored value
// changed. Callers serialize calls for the same record.
func (store *Store) RaiseAppliedVersion(ctx context.Context, table, recordID string, version int64) (bool, error) {
	current, ok, err := store.AppliedVersion(ctx, table, recordID)

	if err != nil && err != syncerr.ECorrupted {
		return false, err
	}

	if ok && current >= version {
		return false, nil
	}

	if err := store.kv.Set(ctx, VersionKey(table, recordID), []byte(strconv.FormatInt(version, 10)), store.versionRetention); err != nil {
		return false, storageError("write applied version", err)
	}

	return true, nil
}

func (store *Store) MarkProcessed(ctx context.Context, operationID string) error {
	if err := store.kv.Set(ctx, ProcessedKey(operationID), []byte(strconv.FormatInt(time.Now().Unix(), 10)), store.markerRetention); err != nil {
		return storageError("write processed marker", err)
	}

	return nil
}

func (store *Store) IsProcessed(ctx context.Context, operationID string) (bool, error) {
	exists, err := store.kv.Exists(ctx, ProcessedKey(operationID))

	if err != nil {
		return false, storageError("read processed marker", err)
	}

	return exists, nil
}

// SaveState persists the coordinator state document.
func (store *Store) SaveState(ctx context.Context, state interface{}) error {
	encoded, err := json.Marshal(state)

	if err != nil {
		return err
	}

	if err := store.kv.Set(ctx, StatusKey, encoded, 0); err != nil {
		return storageError("write coordinator state", err)
	}

	return nil
}

// LoadState decodes the coordinator state document into state. It reports
// false when no state has been saved yet.
func (store *Store) LoadState(ctx context.Context, state interface{}) (bool, error) {
	encoded, err := store.kv.Get(ctx, StatusKey)

	if err == kv.ErrNotFound {
		return false, nil
	}

	if err != nil {
		return false, storageError("read coordinator state", err)
	}

	if err := json.Unmarshal(encoded, state); err != nil {
		return false, syncerr.ECorrupted
	}

	return true, nil
}
