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

import (
	"bytes"
	"errors"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	levelErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/syncerr"
)

var EDriverClosed = errors.New("Driver is closed")

// prefixIterator scans a snapshot one prefix at a time.
type prefixIterator struct {
	snapshot *leveldb.Snapshot
	current  iterator.Iterator
	prefixes [][]byte
	prefix   []byte
	err      error
}

func (it *prefixIterator) Next() bool {
	for it.err == nil {
		if it.current == nil {
			if len(it.prefixes) == 0 {
				return false
			}

			it.prefix, it.prefixes = it.prefixes[0], it.prefixes[1:]
			it.current = it.snapshot.NewIterator(util.BytesPrefix(it.prefix), nil)
		}

		if it.current.Next() {
			return true
		}

		if err := it.current.Error(); err != nil {
			prometheusRecordStorageError("scan")
			it.err = err
		}

		it.current.Release()
		it.current = nil
	}

	return false
}

func (it *prefixIterator) Prefix() []byte {
	return it.prefix
}

func (it *prefixIterator) Key() []byte {
	if it.current == nil {
		return nil
	}

	return it.current.Key()
}

func (it *prefixIterator) Value() []byte {
	if it.current == nil {
		return nil
	}

	return it.current.Value()
}

func (it *prefixIterator) Release() {
	if it.current != nil {
		it.current.Release()
		it.current = nil
	}

	it.prefixes = nil
	it.snapshot.Release()
}

func (it *prefixIterator) Error() error {
	return it.err
}

// distinctPrefixes sorts prefixes and drops any prefix already covered by a
// shorter one so no key is visited twice.
func distinctPrefixes(prefixes [][]byte) [][]byte {
	sorted := make([][]byte, 0, len(prefixes))

	for _, prefix := range prefixes {
		if prefix != nil {
			sorted = append(sorted, prefix)
		}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})

	result := make([][]byte, 0, len(sorted))

	for _, prefix := range sorted {
		if len(result) > 0 && bytes.HasPrefix(prefix, result[len(result)-1]) {
			continue
		}

		result = append(result, prefix)
	}

	return result
}

type LevelDBStorageDriver struct {
	path    string
	options *opt.Options
	db      *leveldb.DB
}

func NewLevelDBStorageDriver(path string, options *opt.Options) *LevelDBStorageDriver {
	return &LevelDBStorageDriver{path: path, options: options}
}

// Open opens the database, creating it if needed. It returns
// syncerr.ECorrupted when the files on disk need Recover.
func (driver *LevelDBStorageDriver) Open() error {
	driver.Close()

	db, err := leveldb.OpenFile(driver.path, driver.options)

	if err != nil {
		prometheusRecordStorageError("open")

		if levelErrors.IsCorrupted(err) {
			Log.Criticalf("Store at %s is corrupted: %v", driver.path, err)

			return syncerr.ECorrupted
		}

		return err
	}

	driver.db = db

	return nil
}

func (driver *LevelDBStorageDriver) Close() error {
	if driver.db == nil {
		return nil
	}

	err := driver.db.Close()
	driver.db = nil

	return err
}

func (driver *LevelDBStorageDriver) Recover() error {
	driver.Close()

	db, err := leveldb.RecoverFile(driver.path, driver.options)

	if err != nil {
		prometheusRecordStorageError("recover")

		return err
	}

	driver.db = db

	return nil
}

func (driver *LevelDBStorageDriver) Compact() error {
	if driver.db == nil {
		return EDriverClosed
	}

	if err := driver.db.CompactRange(util.Range{}); err != nil {
		prometheusRecordStorageError("compact")

		return err
	}

	return nil
}

func (driver *LevelDBStorageDriver) Get(keys [][]byte) ([][]byte, error) {
	if driver.db == nil {
		return nil, EDriverClosed
	}

	snapshot, err := driver.db.GetSnapshot()

	if err != nil {
		prometheusRecordStorageError("get")

		return nil, err
	}

	defer snapshot.Release()

	values := make([][]byte, len(keys))

	for i, key := range keys {
		if key == nil {
			continue
		}

		value, err := snapshot.Get(key, nil)

		if err == leveldb.ErrNotFound {
			continue
		}

		if err != nil {
			prometheusRecordStorageError("get")

			return nil, err
		}

		values[i] = value
	}

	return values, nil
}

func (driver *LevelDBStorageDriver) GetMatches(prefixes [][]byte) (StorageIterator, error) {
	if driver.db == nil {
		return nil, EDriverClosed
	}

	snapshot, err := driver.db.GetSnapshot()

	if err != nil {
		prometheusRecordStorageError("scan")

		return nil, err
	}

	return &prefixIterator{snapshot: snapshot, prefixes: distinctPrefixes(prefixes)}, nil
}

func (driver *LevelDBStorageDriver) Batch(batch *Batch) error {
	if driver.db == nil {
		return EDriverClosed
	}

	if batch == nil || batch.Size() == 0 {
		return nil
	}

	writes := new(leveldb.Batch)

	batch.Each(func(key []byte, value []byte, delete bool) {
		if delete {
			writes.Delete(key)
		} else {
			writes.Put(key, value)
		}
	})

	if err := driver.db.Write(writes, nil); err != nil {
		prometheusRecordStorageError("batch")

		return err
	}

	return nil
}
