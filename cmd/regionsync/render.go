package main

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
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/replication"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}

	return t.Local().Format(timeLayout)
}

func renderStatus(w io.Writer, status replication.Status) {
	regions := make([]string, 0, len(status.BackupRegions))

	for _, region := range status.BackupRegions {
		regions = append(regions, region.Code)
	}

	if len(regions) == 0 {
		regions = append(regions, "none")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Region", status.CurrentRegion})
	table.Append([]string{"Primary region", status.PrimaryRegion})
	table.Append([]string{"Is primary", strconv.FormatBool(status.IsPrimary)})
	table.Append([]string{"Backup regions", strings.Join(regions, ", ")})
	table.Append([]string{"Coordinator", string(status.State)})
	table.Append([]string{"Queue depth", strconv.FormatInt(status.QueueDepth, 10)})
	table.Append([]string{"Last sync attempt", formatTime(status.LastSyncAttempt)})
	table.Append([]string{"Last sync completion", formatTime(status.LastSyncCompletion)})

	if status.LastError != "" {
		table.Append([]string{"Last error", status.LastError})
	}

	table.Render()

	counts := tablewriter.NewWriter(w)
	counts.SetHeader([]string{"Status", "Operations"})

	for _, s := range oplog.Statuses {
		counts.Append([]string{string(s), strconv.Itoa(status.Counts[s])})
	}

	counts.Render()
}

func renderBatchResult(w io.Writer, result replication.BatchResult) {
	if result.Skipped {
		fmt.Fprintf(w, "Batch skipped: %s\n", result.Reason)

		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Total", "Delivered", "Not delivered", "Duration"})
	table.Append([]string{
		strconv.Itoa(result.Total),
		strconv.Itoa(result.Succeeded),
		strconv.Itoa(result.Failed),
		(time.Duration(result.Duration) * time.Millisecond).String(),
	})
	table.Render()
}

func renderRepairResults(w io.Writer, results []replication.RepairResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Table < results[j].Table
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Repaired", "Operation", "Error"})

	for _, result := range results {
		operationID := result.OperationID
		failure := result.Error

		if operationID == "" {
			operationID = "-"
		}

		if failure == "" {
			failure = "-"
		}

		table.Append([]string{result.Table, strconv.Itoa(result.Repaired), operationID, failure})
	}

	table.Render()
}

func renderOperations(w io.Writer, operations []*oplog.Operation) {
	if len(operations) == 0 {
		fmt.Fprintln(w, "No operations logged")

		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Table", "Type", "Record", "Source", "Status", "Retries", "Created", "Updated", "Error"})

	for _, operation := range operations {
		table.Append([]string{
			operation.ID,
			operation.Table,
			string(operation.Type),
			operation.RecordID,
			operation.SourceRegion,
			string(operation.Status),
			strconv.Itoa(operation.RetryCount),
			formatTime(&operation.CreatedAt),
			formatTime(&operation.UpdatedAt),
			operation.LastError,
		})
	}

	table.Render()
}
