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
	"time"

	"github.com/PelionIoT/regionsync/oplog"
)

// IncomingOperation is the body a primary region posts to the ingest
// endpoint of a backup region.
type IncomingOperation struct {
	OperationID   string        `json:"operation_id"`
	Table         string        `json:"table"`
	OperationType oplog.Type    `json:"operation_type"`
	RecordID      string        `json:"record_id"`
	Data          oplog.Payload `json:"data"`
	SourceRegion  string        `json:"source_region"`
	Timestamp     int64         `json:"timestamp"`
}

func FromOperation(operation *oplog.Operation) *IncomingOperation {
	return &IncomingOperation{
		OperationID:   operation.ID,
		Table:         operation.Table,
		OperationType: operation.Type,
		RecordID:      operation.RecordID,
		Data:          operation.Data,
		SourceRegion:  operation.SourceRegion,
		Timestamp:     operation.CreatedAt.UnixNano() / int64(time.Millisecond),
	}
}

type Result struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}
