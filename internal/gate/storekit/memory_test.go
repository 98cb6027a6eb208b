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
	"reflect"
	"testing"
	"time"
)

func TestMemoryStore_ZAddAndRangeByScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.ZAdd(ctx, "k", 10, "10_a")
	_ = s.ZAdd(ctx, "k", 20, "20_b")
	_ = s.ZAdd(ctx, "k", 30, "30_c")

	got, err := s.ZRangeByScore(ctx, "k", 15, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"20_b", "30_c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMemoryStore_ZRemRangeByScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.ZAdd(ctx, "k", 10, "10_a")
	_ = s.ZAdd(ctx, "k", 700, "700_b")

	removed, err := s.ZRemRangeByScore(ctx, "k", 0, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	remaining, _ := s.ZRange(ctx, "k")
	if !reflect.DeepEqual(remaining, []string{"700_b"}) {
		t.Fatalf("unexpected remaining members: %v", remaining)
	}
}

func TestMemoryStore_IncrAndExpire(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	v, err := s.Incr(ctx, "c")
	if err != nil || v != 1 {
		t.Fatalf("expected 1, got %d err=%v", v, err)
	}
	v, _ = s.Incr(ctx, "c")
	if v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	if err := s.Expire(ctx, "c", time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	got, ok, err := s.Get(ctx, "c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected key to have expired, got value %d", got)
	}
}

func TestMemoryStore_Pipeline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pipe := s.Pipeline()
	pipe.ZAdd("k", 1, "1_x")
	incrFut := pipe.Incr("count")
	rangeFut := pipe.ZRangeByScore("k", 0, 10)
	if err := pipe.Exec(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := incrFut.Result()
	if err != nil || n != 1 {
		t.Fatalf("expected incr=1, got %d err=%v", n, err)
	}
	members, err := rangeFut.Result()
	if err != nil || !reflect.DeepEqual(members, []string{"1_x"}) {
		t.Fatalf("unexpected members %v err=%v", members, err)
	}
}
