package storage

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

// StorageIterator walks the keys matched by a scan in ascending order. Key
// and Value are only valid until the next call to Next.
type StorageIterator interface {
	Next() bool
	// The scanned prefix the current key belongs to
	Prefix() []byte
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// StorageDriver is the ordered byte store backing the local key value store.
type StorageDriver interface {
	Open() error
	Close() error
	Recover() error
	Compact() error
	// Get returns one value per key, nil where the key is missing.
	Get(keys [][]byte) ([][]byte, error)
	// GetMatches scans every key that starts with one of the prefixes.
	GetMatches(prefixes [][]byte) (StorageIterator, error)
	Batch(batch *Batch) error
}

type mutation struct {
	key    []byte
	value  []byte
	delete bool
}

// A Batch is written atomically. Writing a key twice in one batch keeps
// only the last write.
type Batch struct {
	mutations map[string]mutation
	order     []string
}

func NewBatch() *Batch {
	return &Batch{mutations: make(map[string]mutation)}
}

func (batch *Batch) set(m mutation) *Batch {
	key := string(m.key)

	if _, ok := batch.mutations[key]; !ok {
		batch.order = append(batch.order, key)
	}

	batch.mutations[key] = m

	return batch
}

func (batch *Batch) Put(key []byte, value []byte) *Batch {
	return batch.set(mutation{key: key, value: value})
}

func (batch *Batch) Delete(key []byte) *Batch {
	return batch.set(mutation{key: key, delete: true})
}

func (batch *Batch) Size() int {
	return len(batch.order)
}

// Each visits the batch in the order keys were first written.
func (batch *Batch) Each(visit func(key []byte, value []byte, delete bool)) {
	for _, key := range batch.order {
		m := batch.mutations[key]

		visit(m.key, m.value, m.delete)
	}
}
