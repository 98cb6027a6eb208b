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
	"sync"
	"sync/atomic"
	"time"
)

// managed wraps a Counter with the bookkeeping the Flusher needs: last
// touch time (for idle eviction and max-age freshness flushes) and an
// armed/disarmed hysteresis flag, the same high/low watermark scheme the
// teacher's managedVSA uses to stop a key that hovers around the
// threshold from committing on every other tick.
type managed struct {
	counter     *Counter
	lastTouched int64 // UnixNano, atomic
	armed       atomic.Bool
}

// Registry holds one Counter per backend key, created lazily on first
// touch. It is the direct analogue of the teacher's core.Store, generalized
// from "per-API-key rate budget" to "per-(metric,second) counter key".
type Registry struct {
	counters sync.Map // string -> *managed
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the Counter for key, creating and arming it on first
// touch, and always refreshing its last-touched time.
func (r *Registry) GetOrCreate(key string) *Counter {
	now := time.Now().UnixNano()
	if v, ok := r.counters.Load(key); ok {
		m := v.(*managed)
		atomic.StoreInt64(&m.lastTouched, now)
		return m.counter
	}
	m := &managed{counter: NewCounter(), lastTouched: now}
	m.armed.Store(true)
	if actual, loaded := r.counters.LoadOrStore(key, m); loaded {
		existing := actual.(*managed)
		atomic.StoreInt64(&existing.lastTouched, now)
		return existing.counter
	}
	return m.counter
}

// forEach iterates every tracked key. f must not retain managed beyond the
// call.
func (r *Registry) forEach(f func(key string, m *managed)) {
	r.counters.Range(func(k, v interface{}) bool {
		f(k.(string), v.(*managed))
		return true
	})
}

// Delete drops a key from the registry, e.g. after it has been idle long
// enough that its last commit can be treated as final.
func (r *Registry) Delete(key string) {
	r.counters.Delete(key)
}

// Pending returns the not-yet-flushed delta for key without touching its
// last-touched time or creating it if absent. Callers that need a window
// read to reflect increments the Flusher hasn't pushed to the backend yet
// add this to the value they read from storage.
func (r *Registry) Pending(key string) int64 {
	v, ok := r.counters.Load(key)
	if !ok {
		return 0
	}
	_, pending := v.(*managed).counter.State()
	return pending
}
