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
	"sync"
	"time"

	"github.com/PelionIoT/regionsync/oplog"
)

const (
	EventDispatch = "dispatch"
	EventBatch    = "batch"
)

// Event describes the outcome of a dispatch attempt or a batch cycle.
type Event struct {
	Type        string          `json:"type"`
	OperationID string          `json:"operation_id,omitempty"`
	Table       string          `json:"table,omitempty"`
	RecordID    string          `json:"record_id,omitempty"`
	Status      oplog.Status    `json:"status,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	Regions     map[string]bool `json:"regions,omitempty"`
	Error       string          `json:"error,omitempty"`
	Batch       *BatchResult    `json:"batch,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

type Listener func(Event)

// EventBus fans events out to listeners synchronously. Listeners must not
// block.
type EventBus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
}

func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers listener and returns a function that removes it.
func (bus *EventBus) Subscribe(listener Listener) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	id := bus.nextID
	bus.nextID++
	bus.listeners[id] = listener

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()

		delete(bus.listeners, id)
	}
}

func (bus *EventBus) Publish(event Event) {
	if bus == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
}

func operationEvent(operation *oplog.Operation) Event {
	return Event{
		Type:        EventDispatch,
		OperationID: operation.ID,
		Table:       operation.Table,
		RecordID:    operation.RecordID,
		Status:      operation.Status,
		RetryCount:  operation.RetryCount,
		Regions:     operation.RegionResults,
		Error:       operation.LastError,
	}
}
