package util

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
)

// InFlightSet tracks keys that are currently being worked on by this process
type InFlightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{
		keys: make(map[string]struct{}),
	}
}

// TryAdd returns false if key is already in the set
func (set *InFlightSet) TryAdd(key string) bool {
	set.mu.Lock()
	defer set.mu.Unlock()

	if _, ok := set.keys[key]; ok {
		return false
	}

	set.keys[key] = struct{}{}

	return true
}

func (set *InFlightSet) Remove(key string) {
	set.mu.Lock()
	defer set.mu.Unlock()

	delete(set.keys, key)
}

func (set *InFlightSet) Has(key string) bool {
	set.mu.Lock()
	defer set.mu.Unlock()

	_, ok := set.keys[key]

	return ok
}

func (set *InFlightSet) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()

	return len(set.keys)
}
