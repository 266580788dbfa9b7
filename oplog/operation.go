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
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRetry      Status = "retry"
	StatusFailed     Status = "failed"
)

var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusRetry, StatusFailed}

func (status Status) Valid() bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}

	return false
}

func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusRetry, StatusFailed},
	StatusRetry:      {StatusProcessing, StatusFailed},
}

// CanTransition reports whether an operation in status from may move to
// status to. Completed and failed operations never change again and no
// operation returns to pending.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

type Type string

const (
	TypeInsert Type = "insert"
	TypeUpdate Type = "update"
	TypeDelete Type = "delete"
)

func (operationType Type) Valid() bool {
	return operationType == TypeInsert || operationType == TypeUpdate || operationType == TypeDelete
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Operation struct {
	ID            string          `json:"id"`
	Table         string          `json:"table"`
	Type          Type            `json:"operation_type"`
	RecordID      string          `json:"record_id"`
	Data          Payload         `json:"data"`
	SourceRegion  string          `json:"source_region"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Status        Status          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	Priority      Priority        `json:"priority"`
	LastError     string          `json:"last_error,omitempty"`
	RegionResults map[string]bool `json:"region_results,omitempty"`
}

func (operation *Operation) UnmarshalJSON(encoded []byte) error {
	type operationAlias Operation
	var decoded operationAlias

	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return err
	}

	decoded.Data = decoded.Data.As(decoded.Type)
	*operation = Operation(decoded)

	return nil
}

func (operation *Operation) Score() float64 {
	return float64(operation.CreatedAt.UnixNano() / int64(time.Millisecond))
}
