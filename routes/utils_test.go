package routes_test

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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/ingest"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/replication"
)

type MockIngest struct {
	defaultResult ingest.Result
	defaultError  error
	received      []*ingest.IncomingOperation
}

func (mockIngest *MockIngest) ApplyIncoming(ctx context.Context, operation *ingest.IncomingOperation) (ingest.Result, error) {
	mockIngest.received = append(mockIngest.received, operation)

	return mockIngest.defaultResult, mockIngest.defaultError
}

type MockReporter struct {
	defaultStatus replication.Status
	defaultError  error
}

func (reporter *MockReporter) Status(ctx context.Context) (replication.Status, error) {
	return reporter.defaultStatus, reporter.defaultError
}

type MockHub struct {
	accepted chan *websocket.Conn
}

func (hub *MockHub) AcceptEventsConnection(conn *websocket.Conn) {
	hub.accepted <- conn
}

type MockAdmin struct {
	defaultBatchResult replication.BatchResult
	defaultRepair      []replication.RepairResult
	defaultOperations  []*oplog.Operation
	defaultDeleted     int
	defaultError       error
	purgeAge           time.Duration
	repairTable        string
	logsFilter         oplog.Filter
}

func (admin *MockAdmin) Trigger(ctx context.Context) (replication.BatchResult, error) {
	return admin.defaultBatchResult, admin.defaultError
}

func (admin *MockAdmin) PurgeFailed(ctx context.Context, age time.Duration) (int, error) {
	admin.purgeAge = age

	return admin.defaultDeleted, admin.defaultError
}

func (admin *MockAdmin) Repair(ctx context.Context, table string) ([]replication.RepairResult, error) {
	admin.repairTable = table

	return admin.defaultRepair, admin.defaultError
}

func (admin *MockAdmin) Logs(ctx context.Context, filter oplog.Filter) ([]*oplog.Operation, error) {
	admin.logsFilter = filter

	return admin.defaultOperations, admin.defaultError
}

func signedRequest(method string, path string, sourceRegion string, targetRegion string, body []byte) *http.Request {
	request := httptest.NewRequest(method, path, bytes.NewReader(body))
	request.Header.Set(client.TokenHeader, client.GenerateToken(sourceRegion, targetRegion, time.Now(), "secret"))
	request.Header.Set(client.SourceRegionHeader, sourceRegion)

	return request
}

func serve(router *mux.Router, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	return recorder
}

func decodeResult(recorder *httptest.ResponseRecorder) ingest.Result {
	var result ingest.Result

	json.Unmarshal(recorder.Body.Bytes(), &result)

	return result
}
