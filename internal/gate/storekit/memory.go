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
	"sort"
	"sync"
	"time"
)

// MemoryStore is a dependency-free Store used in unit tests and as the
// zero-configuration fallback when no Redis address is configured (e.g.
// running the proxy locally without infrastructure). Unlike the teacher's
// console-logging demo clients, this one is fully functional: the round-
// trip laws in spec §8 only hold if writes are actually observable by
// reads, so a stand-in that merely prints would not let those tests run
// without a live Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sets     map[string][]memberScore
	counters map[string]counterEntry
}

type memberScore struct {
	member string
	score  float64
}

type counterEntry struct {
	value  int64
	expiry time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets:     make(map[string][]memberScore),
		counters: make(map[string]counterEntry),
	}
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zaddLocked(key, score, member)
	return nil
}

func (s *MemoryStore) zaddLocked(key string, score float64, member string) {
	members := s.sets[key]
	for i, m := range members {
		if m.member == member {
			members[i].score = score
			return
		}
	}
	s.sets[key] = append(members, memberScore{member: member, score: score})
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeByScoreLocked(key, min, max), nil
}

func (s *MemoryStore) rangeByScoreLocked(key string, min, max int64) []string {
	members := append([]memberScore(nil), s.sets[key]...)
	sort.Slice(members, func(i, j int) bool { return members[i].score < members[j].score })
	var out []string
	for _, m := range members {
		if m.score >= float64(min) && m.score <= float64(max) {
			out = append(out, m.member)
		}
	}
	return out
}

func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.sets[key]
	kept := members[:0]
	var removed int64
	for _, m := range members {
		if m.score >= float64(min) && m.score <= float64(max) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.sets[key] = kept
	return removed, nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := append([]memberScore(nil), s.sets[key]...)
	sort.Slice(members, func(i, j int) bool { return members[i].score < members[j].score })
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.member
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *MemoryStore) getLocked(key string) (int64, bool, error) {
	e, ok := s.counters[key]
	if !ok {
		return 0, false, nil
	}
	if !e.expiry.IsZero() && time.Now().After(e.expiry) {
		delete(s.counters, key)
		return 0, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, _ := s.getLocked(key)
	if !ok {
		v = 0
	}
	v++
	e := s.counters[key]
	e.value = v
	s.counters[key] = e
	return v, nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, _ := s.getLocked(key)
	if !ok {
		v = 0
	}
	v += delta
	e := s.counters[key]
	e.value = v
	s.counters[key] = e
	return v, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.counters[key]
	if !ok {
		return nil
	}
	e.expiry = time.Now().Add(ttl)
	s.counters[key] = e
	return nil
}

func (s *MemoryStore) Pipeline() Pipeliner {
	return &memoryPipeline{store: s}
}

type memoryOp func()

// memoryPipeline queues closures and a matching result slot; Exec just
// runs them in order against the shared store under one lock acquisition
// per op (sufficient for a test double; real batching savings come from
// RedisStore's actual network round trip reduction).
type memoryPipeline struct {
	store *MemoryStore
	ops   []memoryOp
}

type memoryIntFuture struct {
	val int64
	err error
}

func (f *memoryIntFuture) Result() (int64, error) { return f.val, f.err }

type memoryStringsFuture struct {
	val []string
	err error
}

func (f *memoryStringsFuture) Result() ([]string, error) { return f.val, f.err }

func (p *memoryPipeline) ZAdd(key string, score float64, member string) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		p.store.mu.Lock()
		defer p.store.mu.Unlock()
		p.store.zaddLocked(key, score, member)
		fut.val = 1
	})
	return fut
}

func (p *memoryPipeline) ZRangeByScore(key string, min, max int64) StringsFuture {
	fut := &memoryStringsFuture{}
	p.ops = append(p.ops, func() {
		p.store.mu.Lock()
		defer p.store.mu.Unlock()
		fut.val = p.store.rangeByScoreLocked(key, min, max)
	})
	return fut
}

func (p *memoryPipeline) ZRemRangeByScore(key string, min, max int64) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		n, _ := p.store.ZRemRangeByScore(context.Background(), key, min, max)
		fut.val = n
	})
	return fut
}

func (p *memoryPipeline) ZRange(key string) StringsFuture {
	fut := &memoryStringsFuture{}
	p.ops = append(p.ops, func() {
		vals, _ := p.store.ZRange(context.Background(), key)
		fut.val = vals
	})
	return fut
}

func (p *memoryPipeline) Get(key string) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		p.store.mu.Lock()
		defer p.store.mu.Unlock()
		v, _, _ := p.store.getLocked(key)
		fut.val = v
	})
	return fut
}

func (p *memoryPipeline) Incr(key string) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		v, _ := p.store.Incr(context.Background(), key)
		fut.val = v
	})
	return fut
}

func (p *memoryPipeline) IncrBy(key string, delta int64) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		v, _ := p.store.IncrBy(context.Background(), key, delta)
		fut.val = v
	})
	return fut
}

func (p *memoryPipeline) Expire(key string, ttl time.Duration) IntFuture {
	fut := &memoryIntFuture{}
	p.ops = append(p.ops, func() {
		_ = p.store.Expire(context.Background(), key, ttl)
		fut.val = 1
	})
	return fut
}

func (p *memoryPipeline) Exec(_ context.Context) error {
	for _, op := range p.ops {
		op()
	}
	return nil
}
