package oplog_test

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

	. "github.com/PelionIoT/regionsync/oplog"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Operation", func() {
	Describe("CanTransition", func() {
		It("Should allow the forward path through the state machine", func() {
			Expect(CanTransition(StatusPending, StatusProcessing)).Should(BeTrue())
			Expect(CanTransition(StatusPending, StatusFailed)).Should(BeTrue())
			Expect(CanTransition(StatusProcessing, StatusCompleted)).Should(BeTrue())
			Expect(CanTransition(StatusProcessing, StatusRetry)).Should(BeTrue())
			Expect(CanTransition(StatusProcessing, StatusFailed)).Should(BeTrue())
			Expect(CanTransition(StatusRetry, StatusProcessing)).Should(BeTrue())
			Expect(CanTransition(StatusRetry, StatusFailed)).Should(BeTrue())
		})

		It("Should never return an operation to pending", func() {
			for _, status := range Statuses {
				Expect(CanTransition(status, StatusPending)).Should(BeFalse())
			}
		})

		It("Should treat completed and failed as terminal", func() {
			for _, status := range Statuses {
				Expect(CanTransition(StatusCompleted, status)).Should(BeFalse())
				Expect(CanTransition(StatusFailed, status)).Should(BeFalse())
			}
		})
	})

	Describe("JSON encoding", func() {
		It("Should tag object payloads by operation type", func() {
			var update Operation
			var remove Operation

			Expect(json.Unmarshal([]byte(`{"id":"1","operation_type":"update","data":{"name":"a","data_version":5}}`), &update)).Should(BeNil())
			Expect(json.Unmarshal([]byte(`{"id":"2","operation_type":"delete","data":{"id":"42"}}`), &remove)).Should(BeNil())

			Expect(update.Data.Kind).Should(Equal(KindRecord))
			Expect(remove.Data.Kind).Should(Equal(KindKey))
		})

		It("Should keep non object payloads raw", func() {
			var operation Operation

			Expect(json.Unmarshal([]byte(`{"id":"1","operation_type":"update","data":[1,2]}`), &operation)).Should(BeNil())
			Expect(operation.Data.Kind).Should(Equal(KindRaw))
			Expect(operation.Data.IsObject()).Should(BeFalse())

			encoded, err := json.Marshal(operation.Data)

			Expect(err).Should(BeNil())
			Expect(encoded).Should(MatchJSON(`[1,2]`))
		})

		It("Should encode a missing delete payload as null", func() {
			encoded, err := json.Marshal(KeyPayload(nil))

			Expect(err).Should(BeNil())
			Expect(string(encoded)).Should(Equal("null"))
			Expect(KeyPayload(nil).IsNull()).Should(BeTrue())
		})
	})

	Describe("Payload.DataVersion", func() {
		It("Should read data_version", func() {
			var payload Payload

			Expect(json.Unmarshal([]byte(`{"data_version":9007199254740993}`), &payload)).Should(BeNil())

			version, ok := payload.DataVersion()

			Expect(ok).Should(BeTrue())
			Expect(version).Should(Equal(int64(9007199254740993)))
		})

		It("Should fall back to dataVersion", func() {
			version, ok := RecordPayload(Record{"dataVersion": 3}).DataVersion()

			Expect(ok).Should(BeTrue())
			Expect(version).Should(Equal(int64(3)))
		})

		It("Should report no version when absent or not an integer", func() {
			_, ok := RecordPayload(Record{"name": "a"}).DataVersion()
			Expect(ok).Should(BeFalse())

			_, ok = RecordPayload(Record{"data_version": 1.5}).DataVersion()
			Expect(ok).Should(BeFalse())

			_, ok = RawPayload([]byte(`5`)).DataVersion()
			Expect(ok).Should(BeFalse())
		})
	})

	Describe("Payload.ParseDataVersion", func() {
		It("Should fail when the version is present but not an integer", func() {
			var payload Payload

			Expect(json.Unmarshal([]byte(`{"data_version":4.5}`), &payload)).Should(BeNil())

			_, _, err := payload.ParseDataVersion()
			Expect(err).ShouldNot(BeNil())

			_, _, err = RecordPayload(Record{"data_version": "abc"}).ParseDataVersion()
			Expect(err).ShouldNot(BeNil())

			_, _, err = RecordPayload(Record{"dataVersion": true}).ParseDataVersion()
			Expect(err).ShouldNot(BeNil())
		})

		It("Should treat a null or missing version as absent", func() {
			_, ok, err := RecordPayload(Record{"data_version": nil}).ParseDataVersion()

			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())

			_, ok, err = RawPayload([]byte(`"x"`)).ParseDataVersion()

			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())
		})

		It("Should accept integral numbers and numeric strings", func() {
			version, ok, err := RecordPayload(Record{"data_version": "12"}).ParseDataVersion()

			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
			Expect(version).Should(Equal(int64(12)))

			version, ok, err = RecordPayload(Record{"data_version": float64(7)}).ParseDataVersion()

			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
			Expect(version).Should(Equal(int64(7)))
		})
	})
})
