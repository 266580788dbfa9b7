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

	"github.com/PelionIoT/regionsync/datastore"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/syncerr"
)

const (
	RepairAllTables = "all"
	RepairBatchSize = 500
	// Version stamped on rows that were written before replication was
	// enabled
	RepairVersion = 1
)

type RepairResult struct {
	Table       string `json:"table"`
	Repaired    int    `json:"repaired"`
	OperationID string `json:"operation_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Repairer backfills replication metadata on local rows that have none.
type Repairer struct {
	config    shared.SyncEngineConfig
	datastore datastore.Datastore
	recorder  *Recorder
}

func NewRepairer(config shared.SyncEngineConfig, datastore datastore.Datastore, recorder *Recorder) *Repairer {
	return &Repairer{
		config:    config,
		datastore: datastore,
		recorder:  recorder,
	}
}

// Repair stamps RepairVersion on every row of table that has no version and
// records an update of the first repaired row so that backup regions
// notice the table changed. table may be RepairAllTables. Only the primary
// region may repair. When repairing all tables a table that fails is
// reported in its result and the remaining tables are still repaired.
func (repairer *Repairer) Repair(ctx context.Context, table string) ([]RepairResult, error) {
	if !repairer.config.IsPrimary() {
		return nil, syncerr.ENotPrimary
	}

	tables := []string{table}
	all := table == RepairAllTables

	if all {
		var err error

		if tables, err = repairer.datastore.Tables(ctx); err != nil {
			return nil, err
		}
	} else if !repairer.datastore.HasTable(table) {
		return nil, fmt.Errorf("table %q is not known to the local datastore: %w", table, syncerr.EValidation)
	}

	results := make([]RepairResult, 0, len(tables))

	for _, table := range tables {
		result, err := repairer.repairTable(ctx, table)

		if err != nil {
			err = fmt.Errorf("repair of table %s stopped after %d rows: %v", table, result.Repaired, err)

			if !all {
				return results, err
			}

			Log.Warningf("%v", err)
			result.Error = err.Error()
		}

		results = append(results, result)
	}

	return results, nil
}

func (repairer *Repairer) repairTable(ctx context.Context, table string) (RepairResult, error) {
	result := RepairResult{Table: table}
	first := ""

	for {
		ids, err := repairer.datastore.MissingMetadata(ctx, table, RepairBatchSize)

		if err != nil {
			return result, err
		}

		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := repairer.datastore.StampVersion(ctx, table, id, RepairVersion); err != nil {
				return result, err
			}

			if first == "" {
				first = id
			}

			result.Repaired++
		}
	}

	if first == "" {
		Log.Infof("Table %s has no rows missing replication metadata", table)

		return result, nil
	}

	record, err := repairer.datastore.Get(ctx, table, first)

	if err != nil {
		return result, err
	}

	result.OperationID, err = repairer.recorder.Record(ctx, table, oplog.TypeUpdate, oplog.RecordPayload(record), first)

	if err != nil {
		return result, err
	}

	Log.Infof("Stamped version %d on %d rows of table %s", RepairVersion, result.Repaired, table)

	return result, nil
}
