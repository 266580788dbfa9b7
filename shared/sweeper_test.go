package shared_test

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
	"sync/atomic"
	"time"

	. "github.com/PelionIoT/regionsync/shared"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type countingSweeper struct {
	sweeps int32
}

func (sweeper *countingSweeper) Sweep(ctx context.Context) (int, error) {
	atomic.AddInt32(&sweeper.sweeps, 1)

	return 1, nil
}

var _ = Describe("ExpirySweeper", func() {
	It("Should sweep periodically until stopped", func() {
		sweeper := &countingSweeper{}
		expirySweeper := NewExpirySweeper(sweeper, time.Millisecond*10)

		expirySweeper.Start()

		Eventually(func() int32 {
			return atomic.LoadInt32(&sweeper.sweeps)
		}).Should(BeNumerically(">=", 3))

		expirySweeper.Stop()

		stopped := atomic.LoadInt32(&sweeper.sweeps)

		Consistently(func() int32 {
			return atomic.LoadInt32(&sweeper.sweeps)
		}, time.Millisecond*50).Should(Equal(stopped))
	})
})
