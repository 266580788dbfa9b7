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

	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
)

type Status struct {
	CoordinatorStatus
	QueueDepth    int64                `json:"queue_depth"`
	CurrentRegion string               `json:"current_region"`
	PrimaryRegion string               `json:"primary_region"`
	IsPrimary     bool                 `json:"is_primary"`
	BackupRegions []shared.Region      `json:"backup_regions"`
	// Logged operations grouped by status
	Counts        map[oplog.Status]int `json:"counts"`
}

// StatusReporter aggregates sync health without changing anything.
type StatusReporter struct {
	config shared.SyncEngineConfig
	store  *oplog.Store
}

func NewStatusReporter(config shared.SyncEngineConfig, store *oplog.Store) *StatusReporter {
	return &StatusReporter{
		config: config,
		store:  store,
	}
}

func (reporter *StatusReporter) Status(ctx context.Context) (Status, error) {
	status := Status{
		CoordinatorStatus: CoordinatorStatus{State: StateIdle},
		CurrentRegion:     reporter.config.CurrentRegion,
		PrimaryRegion:     reporter.config.PrimaryRegion,
		IsPrimary:         reporter.config.IsPrimary(),
		BackupRegions:     reporter.config.BackupRegions,
	}

	if status.BackupRegions == nil {
		status.BackupRegions = []shared.Region{}
	}

	if _, err := reporter.store.LoadState(ctx, &status.CoordinatorStatus); err != nil {
		return status, err
	}

	depth, err := reporter.store.QueueDepth(ctx)

	if err != nil {
		return status, err
	}

	status.QueueDepth = depth
	prometheusQueueDepth.Set(float64(depth))

	if status.Counts, err = reporter.store.CountByStatus(ctx); err != nil {
		return status, err
	}

	return status, nil
}

// Counts returns the number of logged operations in each status.
func (reporter *StatusReporter) Counts(ctx context.Context) (map[oplog.Status]int, error) {
	return reporter.store.CountByStatus(ctx)
}
