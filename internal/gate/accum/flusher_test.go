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

package accum

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingFlush struct {
	mu      sync.Mutex
	calls   map[string]int64
	failAll atomic.Bool
}

func newRecordingFlush() *recordingFlush {
	return &recordingFlush{calls: make(map[string]int64)}
}

func (r *recordingFlush) flush(key string, delta int64) error {
	if r.failAll.Load() {
		return errors.New("forced flush error")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[key] += delta
	return nil
}

func (r *recordingFlush) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestFlusher_Hysteresis_DisarmAndRearm(t *testing.T) {
	reg := NewRegistry()
	rec := newRecordingFlush()
	f := NewFlusher(reg, rec.flush, 5, 2, time.Hour, 0, nil)

	c := reg.GetOrCreate("k")
	c.Add(5) // reaches threshold exactly

	f.runCycle(false)

	var disarmed bool
	reg.forEach(func(key string, m *managed) {
		if key == "k" {
			disarmed = !m.armed.Load()
		}
	})
	if !disarmed {
		t.Fatalf("expected key to be disarmed after threshold flush")
	}

	f.runCycle(false) // pending is now 0, <= low watermark
	var rearmed bool
	reg.forEach(func(key string, m *managed) {
		if key == "k" {
			rearmed = m.armed.Load()
		}
	})
	if !rearmed {
		t.Fatalf("expected key to be re-armed once pending falls to the low watermark")
	}
}

func TestFlusher_MaxAgeFlush(t *testing.T) {
	reg := NewRegistry()
	rec := newRecordingFlush()
	f := NewFlusher(reg, rec.flush, 1000, 0, time.Hour, 50*time.Millisecond, nil)

	c := reg.GetOrCreate("age")
	c.Add(1) // below threshold

	reg.forEach(func(key string, m *managed) {
		if key == "age" {
			atomic.StoreInt64(&m.lastTouched, time.Now().Add(-time.Second).UnixNano())
		}
	})

	f.runCycle(false)
	if got := rec.calls["age"]; got != 1 {
		t.Fatalf("expected max-age flush of 1 for 'age', got %d (calls=%#v)", got, rec.calls)
	}
}

func TestFlusher_FlushError_LeavesPendingIntact(t *testing.T) {
	reg := NewRegistry()
	rec := newRecordingFlush()
	rec.failAll.Store(true)
	f := NewFlusher(reg, rec.flush, 3, 1, time.Hour, 0, nil)

	c := reg.GetOrCreate("err")
	c.Add(3)

	f.runCycle(false)

	if _, pending := c.State(); pending != 3 {
		t.Fatalf("expected pending to remain 3 after failed flush, got %d", pending)
	}
	var armed bool
	reg.forEach(func(key string, m *managed) {
		if key == "err" {
			armed = m.armed.Load()
		}
	})
	if armed {
		t.Fatalf("expected key to remain disarmed after a failed flush attempt")
	}
}

func TestFlusher_FinalFlush_CommitsRemainders(t *testing.T) {
	reg := NewRegistry()
	rec := newRecordingFlush()
	f := NewFlusher(reg, rec.flush, 1000, 0, time.Hour, 0, nil)

	a := reg.GetOrCreate("a")
	b := reg.GetOrCreate("b")
	a.Add(2)
	b.Add(3)

	f.runCycle(true)

	if rec.count() != 2 {
		t.Fatalf("expected both keys flushed on final flush, got %#v", rec.calls)
	}
	if committed, pending := a.State(); committed != 2 || pending != 0 {
		t.Fatalf("expected a=(2,0) after final flush, got (%d,%d)", committed, pending)
	}
	if committed, pending := b.State(); committed != 3 || pending != 0 {
		t.Fatalf("expected b=(3,0) after final flush, got (%d,%d)", committed, pending)
	}
}

func TestFlusher_StartStop_RunsFinalFlush(t *testing.T) {
	reg := NewRegistry()
	rec := newRecordingFlush()
	f := NewFlusher(reg, rec.flush, 1000, 0, time.Millisecond, 0, nil)

	c := reg.GetOrCreate("shutdown")
	c.Add(7)

	f.Start()
	f.Stop()

	if got := rec.calls["shutdown"]; got != 7 {
		t.Fatalf("expected final flush to commit 7 on shutdown, got %d", got)
	}
}
