package ingest_test

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
	"errors"
	"fmt"
	"sync"

	"github.com/PelionIoT/regionsync/datastore"
	. "github.com/PelionIoT/regionsync/ingest"
	"github.com/PelionIoT/regionsync/kv"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/syncerr"
	"github.com/PelionIoT/regionsync/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func incoming(id string, operationType oplog.Type, recordID string, data string) *IncomingOperation {
	var operation IncomingOperation

	encoded := fmt.Sprintf(`{"operation_id":%q,"table":"users","operation_type":%q,"record_id":%q,"data":%s,"source_region":"r1","timestamp":1}`, id, operationType, recordID, data)

	Expect(json.Unmarshal([]byte(encoded), &operation)).Should(BeNil())

	return &operation
}

var _ = Describe("Handler", func() {
	var ctx context.Context
	var kvStore kv.Store
	var store *oplog.Store

	BeforeEach(func() {
		ctx = context.Background()
		driver := util.MakeNewStorageDriver()
		driver.Open()
		kvStore = kv.NewLevelDBStore(driver)
		store = oplog.NewStore(kvStore, oplog.Options{})
	})

	AfterEach(func() {
		kvStore.Close()
	})

	Context("With a mock datastore", func() {
		var mock *MockDatastore
		var handler *Handler

		BeforeEach(func() {
			mock = NewMockDatastore("users")
			handler = NewHandler(store, mock)
		})

		Describe("validation", func() {
			check := func(operation *IncomingOperation) {
				result, err := handler.ApplyIncoming(ctx, operation)

				Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())
				Expect(result.Success).Should(BeFalse())
				Expect(mock.Calls()).Should(BeEmpty())
			}

			It("Should reject a missing operation id", func() {
				check(incoming("", oplog.TypeInsert, "42", `{"name":"a"}`))
			})

			It("Should reject an unknown operation type", func() {
				check(incoming("op1", oplog.Type("upsert"), "42", `{"name":"a"}`))
			})

			It("Should reject a malformed record id", func() {
				check(incoming("op1", oplog.TypeInsert, "42; drop", `{"name":"a"}`))
			})

			It("Should reject a table that is not replicated", func() {
				operation := incoming("op1", oplog.TypeInsert, "42", `{"name":"a"}`)
				operation.Table = "sessions"

				check(operation)
			})

			It("Should reject an insert without an object payload", func() {
				check(incoming("op1", oplog.TypeInsert, "42", `null`))
				check(incoming("op1", oplog.TypeUpdate, "42", `[1]`))
			})

			It("Should reject a data version that is not an integer", func() {
				check(incoming("op1", oplog.TypeUpdate, "42", `{"name":"a","data_version":"abc"}`))
				check(incoming("op1", oplog.TypeUpdate, "42", `{"name":"a","data_version":4.5}`))
				check(incoming("op1", oplog.TypeUpdate, "42", `{"name":"a","dataVersion":true}`))
			})

			It("Should reject a column name that is not a valid identifier", func() {
				check(incoming("op1", oplog.TypeInsert, "42", `{"name; drop table users":"a"}`))
			})

			It("Should accept a delete with a null payload", func() {
				result, err := handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeDelete, "42", `null`))

				Expect(err).Should(BeNil())
				Expect(result.Success).Should(BeTrue())
				Expect(mock.Calls()).Should(HaveLen(1))
				Expect(mock.Calls()[0].method).Should(Equal("delete"))
			})
		})

		It("Should dispatch to the datastore by operation type", func() {
			handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeInsert, "1", `{"name":"a"}`))
			handler.ApplyIncoming(ctx, incoming("op2", oplog.TypeUpdate, "2", `{"name":"b"}`))
			handler.ApplyIncoming(ctx, incoming("op3", oplog.TypeDelete, "3", `{"id":"3"}`))

			calls := mock.Calls()

			Expect(calls).Should(HaveLen(3))
			Expect(calls[0].method).Should(Equal("insert"))
			Expect(calls[0].record["name"]).Should(Equal("a"))
			Expect(calls[1].method).Should(Equal("update"))
			Expect(calls[1].recordID).Should(Equal("2"))
			Expect(calls[2].method).Should(Equal("delete"))
		})

		It("Should skip an operation that was already processed", func() {
			result, err := handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"a"}`))

			Expect(err).Should(BeNil())
			Expect(result.Skipped).Should(BeFalse())

			result, err = handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"a"}`))

			Expect(err).Should(BeNil())
			Expect(result).Should(Equal(Result{Success: true, Skipped: true, Message: MessageAlreadyProcessed}))
			Expect(mock.Calls()).Should(HaveLen(1))
		})

		It("Should skip versions that are not newer than the applied version", func() {
			handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"data_version":5}`))

			result, err := handler.ApplyIncoming(ctx, incoming("op2", oplog.TypeUpdate, "42", `{"data_version":5}`))

			Expect(err).Should(BeNil())
			Expect(result).Should(Equal(Result{Success: true, Skipped: true, Message: MessageStaleVersion}))

			result, _ = handler.ApplyIncoming(ctx, incoming("op3", oplog.TypeUpdate, "42", `{"data_version":3}`))

			Expect(result.Skipped).Should(BeTrue())
			Expect(mock.Calls()).Should(HaveLen(1))

			version, _, _ := store.AppliedVersion(ctx, "users", "42")
			Expect(version).Should(Equal(int64(5)))
		})

		It("Should return EApply and record nothing when the datastore fails", func() {
			mock.FailNext(errors.New("database is locked"))

			result, err := handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"data_version":5}`))

			Expect(errors.Is(err, syncerr.EApply)).Should(BeTrue())
			Expect(result.Success).Should(BeFalse())

			processed, _ := store.IsProcessed(ctx, "op1")
			Expect(processed).Should(BeFalse())

			_, ok, _ := store.AppliedVersion(ctx, "users", "42")
			Expect(ok).Should(BeFalse())

			result, err = handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"data_version":5}`))

			Expect(err).Should(BeNil())
			Expect(result.Skipped).Should(BeFalse())
		})
	})

	Context("With a sqlite datastore", func() {
		var local *datastore.SQLDatastore
		var handler *Handler

		BeforeEach(func() {
			var err error

			local, err = datastore.Open(":memory:", []string{"users"})

			Expect(err).Should(BeNil())
			Expect(local.EnsureTable(ctx, "users", "name")).Should(BeNil())

			handler = NewHandler(store, local)
		})

		AfterEach(func() {
			local.Close()
		})

		It("Should leave the datastore unchanged when an applied operation is replayed", func() {
			handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"a","data_version":5}`))
			local.Update(ctx, "users", "42", oplog.Record{"name": "changed locally"})

			result, err := handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"a","data_version":5}`))

			Expect(err).Should(BeNil())
			Expect(result.Skipped).Should(BeTrue())

			record, _ := local.Get(ctx, "users", "42")
			Expect(record["name"]).Should(Equal("changed locally"))
		})

		It("Should end with the newest version whichever order versions arrive in", func() {
			handler.ApplyIncoming(ctx, incoming("op2", oplog.TypeUpdate, "42", `{"name":"v2","data_version":2}`))
			handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"v1","data_version":1}`))

			handler.ApplyIncoming(ctx, incoming("op3", oplog.TypeUpdate, "7", `{"name":"v1","data_version":1}`))
			handler.ApplyIncoming(ctx, incoming("op4", oplog.TypeUpdate, "7", `{"name":"v2","data_version":2}`))

			first, _ := local.Get(ctx, "users", "42")
			second, _ := local.Get(ctx, "users", "7")

			Expect(first["name"]).Should(Equal("v2"))
			Expect(second["name"]).Should(Equal("v2"))
			Expect(first["data_version"]).Should(Equal(int64(2)))
		})

		It("Should not let a malformed version overwrite a newer row", func() {
			handler.ApplyIncoming(ctx, incoming("op1", oplog.TypeUpdate, "42", `{"name":"v5","data_version":5}`))

			result, err := handler.ApplyIncoming(ctx, incoming("op2", oplog.TypeUpdate, "42", `{"name":"stale","data_version":"abc"}`))

			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())
			Expect(result.Success).Should(BeFalse())

			_, err = handler.ApplyIncoming(ctx, incoming("op3", oplog.TypeUpdate, "42", `{"name":"stale","data_version":4.5}`))

			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())

			record, _ := local.Get(ctx, "users", "42")
			Expect(record["name"]).Should(Equal("v5"))
			Expect(record["data_version"]).Should(Equal(int64(5)))

			processed, _ := store.IsProcessed(ctx, "op2")
			Expect(processed).Should(BeFalse())
		})

		It("Should apply concurrent deliveries of the same record one at a time", func() {
			var wg sync.WaitGroup

			for i := 1; i <= 20; i++ {
				wg.Add(1)

				go func(version int) {
					defer GinkgoRecover()
					defer wg.Done()

					_, err := handler.ApplyIncoming(ctx, incoming(fmt.Sprintf("op%d", version), oplog.TypeUpdate, "42", fmt.Sprintf(`{"name":"v%d","data_version":%d}`, version, version)))

					Expect(err).Should(BeNil())
				}(i)
			}

			wg.Wait()

			record, _ := local.Get(ctx, "users", "42")
			version, _, _ := store.AppliedVersion(ctx, "users", "42")

			Expect(record["name"]).Should(Equal("v20"))
			Expect(version).Should(Equal(int64(20)))
		})
	})
})
