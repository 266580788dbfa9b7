package kv

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
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/storage"
)

// Sweeps that remove at least this many values compact the store afterwards.
const CompactAfterSweeping = 10000

var (
	valuePrefix  = []byte("k")
	zsetPrefix   = []byte("z")
	memberMarker = []byte{0, 'm'}
	scoreMarker  = []byte{0, 's'}
)

// LevelDBStore implements Store on top of a local storage driver. Values
// are wrapped in an envelope whose first eight bytes hold the expiry time
// in unix nanoseconds, zero meaning the value never expires. Expired values
// read as missing and are removed by Sweep.
type LevelDBStore struct {
	driver storage.StorageDriver
	lock   sync.Mutex
	now    func() time.Time
}

func NewLevelDBStore(driver storage.StorageDriver) *LevelDBStore {
	return &LevelDBStore{
		driver: driver,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to evaluate expiry.
func (store *LevelDBStore) WithClock(now func() time.Time) *LevelDBStore {
	store.now = now

	return store
}

func valueKey(key string) []byte {
	result := make([]byte, 0, len(valuePrefix)+len(key))
	result = append(result, valuePrefix...)
	result = append(result, key...)

	return result
}

func zsetKey(set string, marker []byte, suffix []byte) []byte {
	result := make([]byte, 0, len(zsetPrefix)+len(set)+len(marker)+len(suffix))
	result = append(result, zsetPrefix...)
	result = append(result, set...)
	result = append(result, marker...)
	result = append(result, suffix...)

	return result
}

func encodeEnvelope(value []byte, expiry int64) []byte {
	result := make([]byte, 8+len(value))

	binary.BigEndian.PutUint64(result[:8], uint64(expiry))
	copy(result[8:], value)

	return result
}

func decodeEnvelope(encoded []byte) ([]byte, int64, bool) {
	if len(encoded) < 8 {
		return nil, 0, false
	}

	value := make([]byte, len(encoded)-8)
	copy(value, encoded[8:])

	return value, int64(binary.BigEndian.Uint64(encoded[:8])), true
}

// encodeScore produces a big endian encoding of score whose byte order
// matches the numeric order of the floats it encodes.
func encodeScore(score float64) []byte {
	bits := math.Float64bits(score)

	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}

	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, bits)

	return result
}

func (store *LevelDBStore) expiryFor(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}

	return store.now().Add(ttl).UnixNano()
}

func (store *LevelDBStore) expired(expiry int64) bool {
	return expiry != 0 && store.now().UnixNano() >= expiry
}

func (store *LevelDBStore) get(key string) ([]byte, int64, error) {
	values, err := store.driver.Get([][]byte{valueKey(key)})

	if err != nil {
		return nil, 0, err
	}

	if values[0] == nil {
		return nil, 0, ErrNotFound
	}

	value, expiry, ok := decodeEnvelope(values[0])

	if !ok || store.expired(expiry) {
		return nil, 0, ErrNotFound
	}

	return value, expiry, nil
}

func (store *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := store.get(key)

	return value, err
}

func (store *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	expiry := store.expiryFor(ttl)

	if ttl == KeepTTL {
		_, currentExpiry, err := store.get(key)

		if err != nil && err != ErrNotFound {
			return err
		}

		expiry = currentExpiry
	}

	return store.driver.Batch(storage.NewBatch().Put(valueKey(key), encodeEnvelope(value, expiry)))
}

func (store *LevelDBStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	_, _, err := store.get(key)

	if err == nil {
		return false, nil
	}

	if err != ErrNotFound {
		return false, err
	}

	if err := store.driver.Batch(storage.NewBatch().Put(valueKey(key), encodeEnvelope(value, store.expiryFor(ttl)))); err != nil {
		return false, err
	}

	return true, nil
}

func (store *LevelDBStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	current, _, err := store.get(key)

	if err == ErrNotFound {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if !bytes.Equal(current, expected) {
		return false, nil
	}

	if err := store.driver.Batch(storage.NewBatch().Delete(valueKey(key))); err != nil {
		return false, err
	}

	return true, nil
}

func (store *LevelDBStore) CompareAndExpire(ctx context.Context, key string, expected []byte, ttl time.Duration) (bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	current, _, err := store.get(key)

	if err == ErrNotFound {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if !bytes.Equal(current, expected) {
		return false, nil
	}

	if err := store.driver.Batch(storage.NewBatch().Put(valueKey(key), encodeEnvelope(current, store.expiryFor(ttl)))); err != nil {
		return false, err
	}

	return true, nil
}

func (store *LevelDBStore) Delete(ctx context.Context, keys ...string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	batch := storage.NewBatch()

	for _, key := range keys {
		batch.Delete(valueKey(key))
	}

	return store.driver.Batch(batch)
}

func (store *LevelDBStore) Exists(ctx context.Context, key string) (bool, error) {
	_, _, err := store.get(key)

	if err == ErrNotFound {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (store *LevelDBStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	iter, err := store.driver.GetMatches([][]byte{valueKey(prefix)})

	if err != nil {
		return nil, err
	}

	defer iter.Release()

	keys := []string{}

	for iter.Next() {
		_, expiry, ok := decodeEnvelope(iter.Value())

		if !ok || store.expired(expiry) {
			continue
		}

		keys = append(keys, string(iter.Key()[len(valuePrefix):]))
	}

	return keys, iter.Error()
}

func (store *LevelDBStore) ZAdd(ctx context.Context, set string, score float64, member string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	memberKey := zsetKey(set, memberMarker, []byte(member))
	values, err := store.driver.Get([][]byte{memberKey})

	if err != nil {
		return err
	}

	batch := storage.NewBatch()

	if values[0] != nil {
		batch.Delete(zsetKey(set, scoreMarker, append(values[0], member...)))
	}

	encodedScore := encodeScore(score)
	batch.Put(memberKey, encodedScore)
	batch.Put(zsetKey(set, scoreMarker, append(encodedScore, member...)), []byte{})

	return store.driver.Batch(batch)
}

func (store *LevelDBStore) ZRem(ctx context.Context, set string, members ...string) error {
	store.lock.Lock()
	defer store.lock.Unlock()

	memberKeys := make([][]byte, len(members))

	for i, member := range members {
		memberKeys[i] = zsetKey(set, memberMarker, []byte(member))
	}

	values, err := store.driver.Get(memberKeys)

	if err != nil {
		return err
	}

	batch := storage.NewBatch()

	for i, member := range members {
		if values[i] == nil {
			continue
		}

		batch.Delete(memberKeys[i])
		batch.Delete(zsetKey(set, scoreMarker, append(values[i], member...)))
	}

	return store.driver.Batch(batch)
}

func (store *LevelDBStore) ZRange(ctx context.Context, set string, start, stop int64) ([]string, error) {
	prefix := zsetKey(set, scoreMarker, nil)
	iter, err := store.driver.GetMatches([][]byte{prefix})

	if err != nil {
		return nil, err
	}

	defer iter.Release()

	members := []string{}

	for iter.Next() {
		members = append(members, string(iter.Key()[len(prefix)+8:]))
	}

	if iter.Error() != nil {
		return nil, iter.Error()
	}

	from, to := normalizeRange(start, stop, int64(len(members)))

	return members[from:to], nil
}

func (store *LevelDBStore) ZCard(ctx context.Context, set string) (int64, error) {
	iter, err := store.driver.GetMatches([][]byte{zsetKey(set, memberMarker, nil)})

	if err != nil {
		return 0, err
	}

	defer iter.Release()

	var count int64

	for iter.Next() {
		count++
	}

	return count, iter.Error()
}

// Sweep deletes every value whose expiry has passed and returns how many
// were removed.
func (store *LevelDBStore) Sweep(ctx context.Context) (int, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	iter, err := store.driver.GetMatches([][]byte{valuePrefix})

	if err != nil {
		return 0, err
	}

	batch := storage.NewBatch()

	for iter.Next() {
		_, expiry, ok := decodeEnvelope(iter.Value())

		if ok && !store.expired(expiry) {
			continue
		}

		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}

	iter.Release()

	if iter.Error() != nil {
		return 0, iter.Error()
	}

	if batch.Size() == 0 {
		return 0, nil
	}

	if err := store.driver.Batch(batch); err != nil {
		return 0, err
	}

	if batch.Size() >= CompactAfterSweeping {
		if err := store.driver.Compact(); err != nil {
			Log.Warningf("Unable to compact the store after sweeping %d expired values: %v", batch.Size(), err)
		}
	}

	return batch.Size(), nil
}

func (store *LevelDBStore) Close() error {
	return store.driver.Close()
}
