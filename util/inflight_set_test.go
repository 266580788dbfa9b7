package util_test

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

	. "github.com/PelionIoT/regionsync/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("InFlightSet", func() {
	Describe("#TryAdd", func() {
		Context("When the key is not in the set", func() {
			It("Should return true and add the key", func() {
				set := NewInFlightSet()

				Expect(set.TryAdd("op1")).Should(BeTrue())
				Expect(set.Has("op1")).Should(BeTrue())
				Expect(set.Len()).Should(Equal(1))
			})
		})

		Context("When the key is already in the set", func() {
			It("Should return false", func() {
				set := NewInFlightSet()

				Expect(set.TryAdd("op1")).Should(BeTrue())
				Expect(set.TryAdd("op1")).Should(BeFalse())
			})
		})

		Context("When the key was removed", func() {
			It("Should return true again", func() {
				set := NewInFlightSet()

				set.TryAdd("op1")
				set.Remove("op1")

				Expect(set.Has("op1")).Should(BeFalse())
				Expect(set.TryAdd("op1")).Should(BeTrue())
			})
		})

		Context("When many goroutines race to add the same key", func() {
			It("Should let exactly one of them win", func() {
				var wg sync.WaitGroup
				var mu sync.Mutex
				set := NewInFlightSet()
				winners := 0

				for i := 0; i < 50; i++ {
					wg.Add(1)

					go func() {
						defer wg.Done()

						if set.TryAdd("op1") {
							mu.Lock()
							winners++
							mu.Unlock()
						}
					}()
				}

				wg.Wait()

				Expect(winners).Should(Equal(1))
			})
		})
	})
})
