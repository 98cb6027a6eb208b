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

// Package storekit abstracts the minimal sorted-set/counter surface the
// rule engine needs from a shared key-value backend. Implementations are
// expected to be concurrency-safe and to discard (not reuse) a connection
// that errored with an I/O failure rather than recycle it into the pool.
package storekit

import (
	"context"
	"time"
)

// Store is the backend contract described in spec §4.2: sorted-set range
// and removal, plain counters, and pipelined batches of the above.
type Store interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error)
	ZRange(ctx context.Context, key string) ([]string, error)
	Get(ctx context.Context, key string) (int64, bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline returns a batch builder. Queued operations are not executed
	// until Exec is called; each Future is only valid to read after Exec
	// returns (whether or not it returned an error — partial failures are
	// reported per-command via each Future's Result()).
	Pipeline() Pipeliner
}

// StringsFuture is a pipelined command whose result is a string slice.
type StringsFuture interface {
	Result() ([]string, error)
}

// IntFuture is a pipelined command whose result is an integer.
type IntFuture interface {
	Result() (int64, error)
}

// Pipeliner batches ZAdd/ZRangeByScore/.../Expire calls into one round trip.
// Futures returned by the queuing methods are populated once Exec runs;
// reading them before Exec is undefined.
type Pipeliner interface {
	ZAdd(key string, score float64, member string) IntFuture
	ZRangeByScore(key string, min, max int64) StringsFuture
	ZRemRangeByScore(key string, min, max int64) IntFuture
	ZRange(key string) StringsFuture
	Get(key string) IntFuture
	Incr(key string) IntFuture
	IncrBy(key string, delta int64) IntFuture
	Expire(key string, ttl time.Duration) IntFuture

	// Exec runs every queued command in a single round trip. It returns a
	// non-nil error only when the round trip itself failed (e.g. the
	// connection dropped); per-command failures surface through each
	// Future's own Result().
	Exec(ctx context.Context) error
}
