// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storekit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the pooled Redis connection.
type RedisConfig struct {
	Addr        string
	Password    string
	PoolSize    int
	IdleTimeout time.Duration
}

// RedisStore is the production Store backed by github.com/redis/go-redis/v9.
// go-redis already guarantees the contract spec §4.2 asks for: a broken
// connection is not returned to the pool, and PoolTimeout bounds how long
// a caller waits to acquire one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials (lazily — go-redis connects on first use) a pooled
// client against cfg.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	opt := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		PoolSize:    cfg.PoolSize,
		PoolTimeout: cfg.IdleTimeout,
	}
	return &RedisStore{client: redis.NewClient(opt)}
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}).Result()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	return s.client.ZRemRangeByScore(ctx, key, strconv.FormatInt(min, 10), strconv.FormatInt(max, 10)).Result()
}

func (s *RedisStore) ZRange(ctx context.Context, key string) ([]string, error) {
	return s.client.ZRange(ctx, key, 0, -1).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storekit: GET %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Pipeline() Pipeliner {
	return &redisPipeline{pipe: s.client.Pipeline()}
}

// redisPipeline adapts redis.Pipeliner's *Cmd types to our Future
// interfaces. Most go-redis command objects already satisfy them
// (StringSliceCmd.Result / IntCmd.Result); Get and Expire are wrapped by
// intCmdAllowNil and boolCmdAsInt below.
type redisPipeline struct {
	pipe redis.Pipeliner
}

func (p *redisPipeline) ZAdd(key string, score float64, member string) IntFuture {
	return p.pipe.ZAdd(context.Background(), key, redis.Z{Score: score, Member: member})
}

func (p *redisPipeline) ZRangeByScore(key string, min, max int64) StringsFuture {
	return p.pipe.ZRangeByScore(context.Background(), key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	})
}

func (p *redisPipeline) ZRemRangeByScore(key string, min, max int64) IntFuture {
	return p.pipe.ZRemRangeByScore(context.Background(), key, strconv.FormatInt(min, 10), strconv.FormatInt(max, 10))
}

func (p *redisPipeline) ZRange(key string) StringsFuture {
	return p.pipe.ZRange(context.Background(), key, 0, -1)
}

func (p *redisPipeline) Get(key string) IntFuture {
	return &intCmdAllowNil{cmd: p.pipe.Get(context.Background(), key)}
}

func (p *redisPipeline) Incr(key string) IntFuture {
	return p.pipe.Incr(context.Background(), key)
}

func (p *redisPipeline) IncrBy(key string, delta int64) IntFuture {
	return p.pipe.IncrBy(context.Background(), key, delta)
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) IntFuture {
	return &boolCmdAsInt{cmd: p.pipe.Expire(context.Background(), key, ttl)}
}

func (p *redisPipeline) Exec(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// intCmdAllowNil maps GET's redis.Nil (key absent) to (0, nil) instead of
// surfacing it as a pipeline error, matching Store.Get's own semantics.
type intCmdAllowNil struct{ cmd *redis.StringCmd }

func (c *intCmdAllowNil) Result() (int64, error) {
	v, err := c.cmd.Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// boolCmdAsInt adapts EXPIRE's boolean result to the IntFuture shape the
// rest of the package uses uniformly.
type boolCmdAsInt struct{ cmd *redis.BoolCmd }

func (c *boolCmdAsInt) Result() (int64, error) {
	ok, err := c.cmd.Result()
	if err != nil {
		return 0, err
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}
