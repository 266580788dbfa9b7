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
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var compareAndExpireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const scanCount = 256

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// RedisStore implements Store against a redis server so that several
// nodes can share the operation log and the batch lease.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromAddress connects to a single redis server.
func NewRedisStoreFromAddress(address string, db int) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{
		Addr: address,
		DB:   db,
	}))
}

func (store *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := store.client.Get(ctx, key).Bytes()

	if err == redis.Nil {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return value, nil
}

func (store *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == KeepTTL {
		return store.client.Set(ctx, key, value, redis.KeepTTL).Err()
	}

	if ttl < 0 {
		ttl = 0
	}

	return store.client.Set(ctx, key, value, ttl).Err()
}

func (store *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}

	return store.client.SetNX(ctx, key, value, ttl).Result()
}

func (store *RedisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, store.client, []string{key}, expected).Int64()

	if err != nil {
		return false, err
	}

	return deleted == 1, nil
}

func (store *RedisStore) CompareAndExpire(ctx context.Context, key string, expected []byte, ttl time.Duration) (bool, error) {
	updated, err := compareAndExpireScript.Run(ctx, store.client, []string{key}, expected, ttl.Milliseconds()).Int64()

	if err != nil {
		return false, err
	}

	return updated == 1, nil
}

func (store *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return store.client.Del(ctx, keys...).Err()
}

func (store *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := store.client.Exists(ctx, key).Result()

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (store *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	iter := store.client.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", scanCount).Iterator()

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (store *RedisStore) ZAdd(ctx context.Context, set string, score float64, member string) error {
	return store.client.ZAdd(ctx, set, redis.Z{Score: score, Member: member}).Err()
}

func (store *RedisStore) ZRem(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	args := make([]interface{}, len(members))

	for i, member := range members {
		args[i] = member
	}

	return store.client.ZRem(ctx, set, args...).Err()
}

func (store *RedisStore) ZRange(ctx context.Context, set string, start, stop int64) ([]string, error) {
	return store.client.ZRange(ctx, set, start, stop).Result()
}

func (store *RedisStore) ZCard(ctx context.Context, set string) (int64, error) {
	return store.client.ZCard(ctx, set).Result()
}

func (store *RedisStore) Close() error {
	return store.client.Close()
}
