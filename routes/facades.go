package routes

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
	"time"

	"github.com/gorilla/websocket"

	"github.com/PelionIoT/regionsync/ingest"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/replication"
)

type IngestFacade interface {
	ApplyIncoming(ctx context.Context, operation *ingest.IncomingOperation) (ingest.Result, error)
}

type StatusFacade interface {
	Status(ctx context.Context) (replication.Status, error)
}

type EventsFacade interface {
	AcceptEventsConnection(conn *websocket.Conn)
}

type AdminFacade interface {
	Trigger(ctx context.Context) (replication.BatchResult, error)
	PurgeFailed(ctx context.Context, age time.Duration) (int, error)
	Repair(ctx context.Context, table string) ([]replication.RepairResult, error)
	Logs(ctx context.Context, filter oplog.Filter) ([]*oplog.Operation, error)
}
