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
	"time"

	. "github.com/PelionIoT/regionsync/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Multilock", func() {
	Describe("lock and unlock", func() {
		It("should serialize writers of the same record but let writers of other records run in parallel", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex

			countA := 0
			countB := 0

			multiLock := NewMultiLock()
			multiLock.Lock([]byte("users:42"))

			go func() {
				multiLock.Lock([]byte("users:42"))

				mu.Lock()
				countA += 1
				mu.Unlock()

				multiLock.Unlock([]byte("users:42"))
			}()

			wg.Add(1)

			go func() {
				multiLock.Lock([]byte("games:7"))

				for i := 0; i < 1000000; i += 1 {
					countB += 1
				}

				multiLock.Unlock([]byte("games:7"))
				wg.Done()
			}()

			wg.Wait()

			mu.Lock()
			Expect(countA).Should(Equal(0))
			mu.Unlock()
			Expect(countB).Should(Equal(1000000))

			multiLock.Unlock([]byte("users:42"))

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()

				return countA
			}, time.Second).Should(Equal(1))
		})

		It("should allow a key to be locked again after it was unlocked", func() {
			multiLock := NewMultiLock()
			done := make(chan struct{})

			multiLock.Lock([]byte("users:42"))
			multiLock.Unlock([]byte("users:42"))

			go func() {
				multiLock.Lock([]byte("users:42"))
				multiLock.Unlock([]byte("users:42"))
				close(done)
			}()

			Eventually(done, time.Second).Should(BeClosed())
		})
	})
})
