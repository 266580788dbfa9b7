package shared

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

	. "github.com/PelionIoT/regionsync/logging"
)

// Sweeper removes expired entries from a store that does not expire them
// on its own.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type ExpirySweeper struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan bool
	wg       sync.WaitGroup
}

func NewExpirySweeper(sweeper Sweeper, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan bool),
	}
}

func (expirySweeper *ExpirySweeper) Start() {
	expirySweeper.wg.Add(1)

	go func() {
		defer expirySweeper.wg.Done()

		for {
			select {
			case <-expirySweeper.done:
				return
			case <-time.After(expirySweeper.interval):
				removed, err := expirySweeper.sweeper.Sweep(context.Background())

				if err != nil {
					Log.Warningf("Expiry sweep failed: %v", err)

					continue
				}

				if removed > 0 {
					Log.Infof("Expiry sweep removed %d expired keys", removed)
				}
			}
		}
	}()
}

func (expirySweeper *ExpirySweeper) Stop() {
	close(expirySweeper.done)
	expirySweeper.wg.Wait()
}
