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
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/PelionIoT/regionsync/kv"
	"github.com/PelionIoT/regionsync/oplog"
	. "github.com/PelionIoT/regionsync/replication"
	"github.com/PelionIoT/regionsync/syncerr"
)

var _ = Describe("Dispatcher", func() {
	var kvStore *kv.LevelDBStore
	var store *oplog.Store
	var sender *MockSender
	var events *EventBus
	var dispatcher *Dispatcher
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		kvStore = newKVStore()
		store = oplog.NewStore(kvStore, oplog.Options{})
		sender = NewMockSender()
		events = NewEventBus()
		dispatcher = NewDispatcher(testConfig(), store, sender, events)
	})

	AfterEach(func() {
		kvStore.Close()
	})

	Describe("#Dispatch", func() {
		Context("When every backup region acknowledges the operation", func() {
			It("Should mark the operation completed and remove it from the queue", func() {
				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeTrue())
				Expect(sender.SentTo("r2")).Should(Equal(1))
				Expect(sender.SentTo("r3")).Should(Equal(1))

				operation, err := store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusCompleted))
				Expect(operation.RetryCount).Should(Equal(0))
				Expect(operation.RegionResults).Should(Equal(map[string]bool{"r2": true, "r3": true}))

				depth, err := store.QueueDepth(ctx)

				Expect(err).Should(BeNil())
				Expect(depth).Should(Equal(int64(0)))
			})

			It("Should publish a dispatch event", func() {
				var received []Event
				var mu sync.Mutex

				events.Subscribe(func(event Event) {
					mu.Lock()
					defer mu.Unlock()

					received = append(received, event)
				})

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				_, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())

				mu.Lock()
				defer mu.Unlock()

				Expect(len(received)).Should(Equal(1))
				Expect(received[0].Type).Should(Equal(EventDispatch))
				Expect(received[0].OperationID).Should(Equal("op1"))
				Expect(received[0].Status).Should(Equal(oplog.StatusCompleted))
			})
		})

		Context("When a backup region does not acknowledge the operation", func() {
			It("Should move the operation to retry and keep it queued", func() {
				sender.Fail("r3", true)

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeFalse())

				operation, err := store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusRetry))
				Expect(operation.RetryCount).Should(Equal(1))
				Expect(operation.LastError).Should(ContainSubstring("r3"))
				Expect(operation.RegionResults).Should(Equal(map[string]bool{"r2": true, "r3": false}))

				ids, err := store.Pending(ctx)

				Expect(err).Should(BeNil())
				Expect(ids).Should(Equal([]string{"op1"}))
			})

			It("Should send the operation to every region again on the next attempt", func() {
				sender.Fail("r3", true)

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				_, err := dispatcher.Dispatch(ctx, "op1")
				Expect(err).Should(BeNil())

				sender.Fail("r3", false)

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeTrue())
				Expect(sender.SentTo("r2")).Should(Equal(2))
				Expect(sender.SentTo("r3")).Should(Equal(2))

				operation, err := store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusCompleted))
				Expect(operation.RetryCount).Should(Equal(1))
				Expect(operation.LastError).Should(Equal(""))
			})

			It("Should fail the operation after exactly the maximum number of attempts", func() {
				sender.Fail("r2", true)

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				for i := 0; i < 3; i++ {
					delivered, err := dispatcher.Dispatch(ctx, "op1")

					Expect(err).Should(BeNil())
					Expect(delivered).Should(BeFalse())
				}

				operation, err := store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusFailed))
				Expect(operation.RetryCount).Should(Equal(3))
				Expect(operation.LastError).Should(ContainSubstring("connection refused"))

				depth, err := store.QueueDepth(ctx)

				Expect(err).Should(BeNil())
				Expect(depth).Should(Equal(int64(0)))

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeFalse())
				Expect(sender.SentTo("r2")).Should(Equal(3))
			})
		})

		Context("When the operation has already used up its retries", func() {
			It("Should fail it without sending anything", func() {
				operation := pendingOperation("op1", time.Now())
				operation.RetryCount = 3

				Expect(store.Append(ctx, operation)).Should(BeNil())

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeFalse())
				Expect(sender.Sent()).Should(BeEmpty())

				operation, err = store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusFailed))
				Expect(operation.LastError).Should(Equal(syncerr.ERetriesExhausted.Error()))
			})
		})

		Context("When the operation record has expired", func() {
			It("Should remove the id from the queue", func() {
				Expect(kvStore.ZAdd(ctx, oplog.QueueKey, 1, "gone")).Should(BeNil())

				delivered, err := dispatcher.Dispatch(ctx, "gone")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeFalse())
				Expect(sender.Sent()).Should(BeEmpty())

				depth, err := store.QueueDepth(ctx)

				Expect(err).Should(BeNil())
				Expect(depth).Should(Equal(int64(0)))
			})
		})

		Context("When the operation is already completed", func() {
			It("Should dequeue it and report it as delivered without sending it again", func() {
				operation := pendingOperation("op1", time.Now())
				operation.Status = oplog.StatusCompleted

				Expect(store.Append(ctx, operation)).Should(BeNil())

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeTrue())
				Expect(sender.Sent()).Should(BeEmpty())

				depth, err := store.QueueDepth(ctx)

				Expect(err).Should(BeNil())
				Expect(depth).Should(Equal(int64(0)))
			})
		})

		Context("When the operation is already being dispatched", func() {
			It("Should return immediately without sending it a second time", func() {
				sender.Block()

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				done := make(chan bool)

				go func() {
					defer GinkgoRecover()

					delivered, err := dispatcher.Dispatch(ctx, "op1")

					Expect(err).Should(BeNil())
					done <- delivered
				}()

				Eventually(func() int { return len(sender.Sent()) }).Should(Equal(2))
				Expect(dispatcher.InFlight("op1")).Should(BeTrue())

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeTrue())
				Expect(len(sender.Sent())).Should(Equal(2))

				sender.Unblock()

				Eventually(done).Should(Receive(BeTrue()))
				Expect(dispatcher.InFlight("op1")).Should(BeFalse())
			})
		})

		Context("When the dispatch is cancelled", func() {
			It("Should leave the operation queued without counting the attempt", func() {
				sender.Block()

				Expect(store.Append(ctx, pendingOperation("op1", time.Now()))).Should(BeNil())

				cancelCtx, cancel := context.WithCancel(ctx)
				done := make(chan error)

				go func() {
					_, err := dispatcher.Dispatch(cancelCtx, "op1")
					done <- err
				}()

				Eventually(func() int { return len(sender.Sent()) }).Should(Equal(2))
				cancel()

				Eventually(done).Should(Receive(Equal(context.Canceled)))
				sender.Unblock()

				operation, err := store.Get(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(operation.Status).Should(Equal(oplog.StatusProcessing))
				Expect(operation.RetryCount).Should(Equal(0))

				delivered, err := dispatcher.Dispatch(ctx, "op1")

				Expect(err).Should(BeNil())
				Expect(delivered).Should(BeTrue())
			})
		})
	})
})
