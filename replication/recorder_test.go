package replication_test

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
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/PelionIoT/regionsync/kv"
	"github.com/PelionIoT/regionsync/oplog"
	. "github.com/PelionIoT/regionsync/replication"
	"github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/syncerr"
)

var _ = Describe("Recorder", func() {
	var kvStore *kv.LevelDBStore
	var store *oplog.Store
	var sender *MockSender
	var pool *Pool
	var ctx context.Context

	newRecorder := func(config shared.SyncEngineConfig) *Recorder {
		return NewRecorder(config, store, NewDispatcher(config, store, sender, nil), pool)
	}

	BeforeEach(func() {
		ctx = context.Background()
		kvStore = newKVStore()
		store = oplog.NewStore(kvStore, oplog.Options{})
		sender = NewMockSender()
		pool = NewPool(2, 4)
	})

	AfterEach(func() {
		pool.Stop()
		kvStore.Close()
	})

	Describe("#Record", func() {
		It("Should append a pending operation to the log and the queue", func() {
			id, err := newRecorder(testConfig()).Record(ctx, "users", oplog.TypeInsert, oplog.RecordPayload(oplog.Record{"name": "a"}), "42")

			Expect(err).Should(BeNil())
			Expect(id).ShouldNot(BeEmpty())

			operation, err := store.Get(ctx, id)

			Expect(err).Should(BeNil())
			Expect(operation.Table).Should(Equal("users"))
			Expect(operation.Type).Should(Equal(oplog.TypeInsert))
			Expect(operation.RecordID).Should(Equal("42"))
			Expect(operation.SourceRegion).Should(Equal("r1"))
			Expect(operation.Status).Should(Equal(oplog.StatusPending))
			Expect(operation.RetryCount).Should(Equal(0))
			Expect(operation.Priority).Should(Equal(oplog.PriorityNormal))
			Expect(operation.Data.Kind).Should(Equal(oplog.KindRecord))

			ids, err := store.Pending(ctx)

			Expect(err).Should(BeNil())
			Expect(ids).Should(Equal([]string{id}))
			Expect(sender.Sent()).Should(BeEmpty())
		})

		It("Should tag delete payloads as keys", func() {
			id, err := newRecorder(testConfig()).Record(ctx, "users", oplog.TypeDelete, oplog.RecordPayload(oplog.Record{"id": "42"}), "42")

			Expect(err).Should(BeNil())

			operation, err := store.Get(ctx, id)

			Expect(err).Should(BeNil())
			Expect(operation.Data.Kind).Should(Equal(oplog.KindKey))
		})

		It("Should do nothing when no backup regions are configured", func() {
			config := testConfig()
			config.BackupRegions = nil

			id, err := newRecorder(config).Record(ctx, "users", oplog.TypeInsert, oplog.RecordPayload(oplog.Record{"name": "a"}), "42")

			Expect(err).Should(BeNil())
			Expect(id).Should(Equal(""))

			depth, err := store.QueueDepth(ctx)

			Expect(err).Should(BeNil())
			Expect(depth).Should(Equal(int64(0)))
		})

		It("Should reject an unknown operation type", func() {
			_, err := newRecorder(testConfig()).Record(ctx, "users", oplog.Type("upsert"), oplog.RecordPayload(oplog.Record{}), "42")

			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())
		})

		It("Should reject a missing table or record id", func() {
			recorder := newRecorder(testConfig())

			_, err := recorder.Record(ctx, "", oplog.TypeInsert, oplog.RecordPayload(oplog.Record{}), "42")
			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())

			_, err = recorder.Record(ctx, "users", oplog.TypeInsert, oplog.RecordPayload(oplog.Record{}), "")
			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())
		})

		It("Should reject a data version that is not an integer", func() {
			_, err := newRecorder(testConfig()).Record(ctx, "users", oplog.TypeUpdate, oplog.RecordPayload(oplog.Record{"data_version": "abc"}), "42")

			Expect(errors.Is(err, syncerr.EValidation)).Should(BeTrue())

			depth, _ := store.QueueDepth(ctx)
			Expect(depth).Should(Equal(int64(0)))
		})

				Context("With high priority", func() {
			It("Should dispatch the operation right away on the primary", func() {
				id, err := newRecorder(testConfig()).Record(ctx, "users", oplog.TypeUpdate, oplog.RecordPayload(oplog.Record{"name": "b"}), "42", WithPriority(oplog.PriorityHigh))

				Expect(err).Should(BeNil())

				Eventually(func() oplog.Status {
					operation, err := store.Get(ctx, id)

					if err != nil {
						return ""
					}

					return operation.Status
				}).Should(Equal(oplog.StatusCompleted))

				Expect(sender.SentTo("r2")).Should(Equal(1))
				Expect(sender.SentTo("r3")).Should(Equal(1))
			})

			It("Should leave the operation for the batch on a region that is not the primary", func() {
				config := testConfig()
				config.CurrentRegion = "r2"

				id, err := newRecorder(config).Record(ctx, "users", oplog.TypeUpdate, oplog.RecordPayload(oplog.Record{"name": "b"}), "42", WithPriority(oplog.PriorityHigh))

				Expect(err).Should(BeNil())
				Consistently(func() int { return len(sender.Sent()) }, time.Millisecond*100).Should(Equal(0))

				operation, err := store.Get(ctx, id)

				Expect(err).Should(BeNil())
				Expect(operation.Priority).Should(Equal(oplog.PriorityHigh))
				Expect(operation.Status).Should(Equal(oplog.StatusPending))
			})
		})
	})
})

var _ = Describe("Pool", func() {
	It("Should run submitted jobs", func() {
		pool := NewPool(2, 2)
		defer pool.Stop()

		ran := make(chan struct{})

		Expect(pool.Submit(func(ctx context.Context) error {
			close(ran)

			return nil
		})).Should(BeTrue())

		Eventually(ran).Should(BeClosed())
	})

	It("Should deliver job errors on the errors channel", func() {
		pool := NewPool(1, 1)
		defer pool.Stop()

		Expect(pool.Submit(func(ctx context.Context) error {
			return errors.New("boom")
		})).Should(BeTrue())

		var err error
		Eventually(pool.Errors()).Should(Receive(&err))
		Expect(err.Error()).Should(Equal("boom"))
	})

	It("Should reject jobs instead of blocking when the queue is full", func() {
		pool := NewPool(1, 1)
		defer pool.Stop()

		started := make(chan struct{})
		release := make(chan struct{})

		Expect(pool.Submit(func(ctx context.Context) error {
			close(started)
			<-release

			return nil
		})).Should(BeTrue())

		Eventually(started).Should(BeClosed())
		Expect(pool.Submit(func(ctx context.Context) error { return nil })).Should(BeTrue())
		Expect(pool.Submit(func(ctx context.Context) error { return nil })).Should(BeFalse())

		close(release)
	})

	It("Should run no more jobs at once than it has workers", func() {
		pool := NewPool(2, 4)
		defer pool.Stop()

		var running int32
		release := make(chan struct{})

		for i := 0; i < 4; i++ {
			Expect(pool.Submit(func(ctx context.Context) error {
				atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)

				<-release

				return nil
			})).Should(BeTrue())
		}

		Eventually(func() int32 { return atomic.LoadInt32(&running) }).Should(Equal(int32(2)))
		Consistently(func() int32 { return atomic.LoadInt32(&running) }, "100ms").Should(Equal(int32(2)))

		close(release)

		Eventually(func() int32 { return atomic.LoadInt32(&running) }).Should(Equal(int32(0)))
	})

	It("Should reject jobs once it is stopped", func() {
		pool := NewPool(1, 1)
		pool.Stop()

		Expect(pool.Submit(func(ctx context.Context) error { return nil })).Should(BeFalse())
		Eventually(pool.Errors()).Should(BeClosed())
	})

	It("Should cancel the context of running jobs when stopped", func() {
		pool := NewPool(1, 1)
		started := make(chan struct{})

		Expect(pool.Submit(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()

			return ctx.Err()
		})).Should(BeTrue())

		Eventually(started).Should(BeClosed())
		pool.Stop()
	})
})

var _ = Describe("StatusReporter", func() {
	var kvStore *kv.LevelDBStore
	var store *oplog.Store
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		kvStore = newKVStore()
		store = oplog.NewStore(kvStore, oplog.Options{})
	})

	AfterEach(func() {
		kvStore.Close()
	})

	It("Should report an idle status before any batch has run", func() {
		Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

		status, err := NewStatusReporter(testConfig(), store).Status(ctx)

		Expect(err).Should(BeNil())
		Expect(status.State).Should(Equal(StateIdle))
		Expect(status.LastSyncAttempt).Should(BeNil())
		Expect(status.QueueDepth).Should(Equal(int64(1)))
		Expect(status.Counts[oplog.StatusPending]).Should(Equal(1))
		Expect(status.CurrentRegion).Should(Equal("r1"))
		Expect(status.PrimaryRegion).Should(Equal("r1"))
		Expect(status.IsPrimary).Should(BeTrue())
		Expect(len(status.BackupRegions)).Should(Equal(2))
	})

	It("Should report the status saved by the coordinator", func() {
		sender := NewMockSender()
		config := testConfig()
		coordinator := NewCoordinator(config, store, leaseManager(kvStore), NewDispatcher(config, store, sender, nil), nil)

		Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

		_, err := coordinator.RunOnce(ctx)
		Expect(err).Should(BeNil())

		replica := testConfig()
		replica.CurrentRegion = "r2"
		status, err := NewStatusReporter(replica, store).Status(ctx)

		Expect(err).Should(BeNil())
		Expect(status.IsPrimary).Should(BeFalse())
		Expect(status.LastSyncCompletion).ShouldNot(BeNil())
		Expect(status.LastResult.Total).Should(Equal(1))
		Expect(status.QueueDepth).Should(Equal(int64(0)))

		counts, err := NewStatusReporter(replica, store).Counts(ctx)

		Expect(err).Should(BeNil())
		Expect(counts[oplog.StatusCompleted]).Should(Equal(1))
	})
})

var _ = Describe("EventBus", func() {
	It("Should stop delivering events to a listener after it unsubscribes", func() {
		bus := NewEventBus()
		received := 0
		unsubscribe := bus.Subscribe(func(event Event) { received++ })

		bus.Publish(Event{Type: EventBatch})
		unsubscribe()
		bus.Publish(Event{Type: EventBatch})

		Expect(received).Should(Equal(1))
	})

	It("Should ignore events published on a nil bus", func() {
		var bus *EventBus

		Expect(func() { bus.Publish(Event{Type: EventBatch}) }).ShouldNot(Panic())
	})
})
