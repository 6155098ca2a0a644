/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mikelane/eventkeeper/internal/event"
)

// DefaultRedisKey is the key used when none is configured
const DefaultRedisKey = "eventkeeper:events"

// RedisClient is the subset of the go-redis API used by RedisStore.
// *redis.Client satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the document under a single string key.
type RedisStore struct {
	client RedisClient
	key    string
	codec  *Codec
}

// NewRedisStore returns a store backed by key on client.
func NewRedisStore(client RedisClient, key string, codec *Codec) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, codec: codec}
}

// Load reads the key. A missing key is an empty store.
func (s *RedisStore) Load(ctx context.Context) (map[string]event.Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(map[string]event.Record), nil
		}
		return nil, fmt.Errorf("failed to get redis key %s: %w", s.key, err)
	}

	records, err := s.codec.Decode(data)
	if err != nil {
		return nil, &event.CorruptStateError{Source: "redis key " + s.key, Err: err}
	}
	return records, nil
}

// Save overwrites the key with the encoded records.
func (s *RedisStore) Save(ctx context.Context, records map[string]event.Record) error {
	data, err := s.codec.Encode(records)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set redis key %s: %w", s.key, err)
	}
	return nil
}
