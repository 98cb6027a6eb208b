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

// Package accum coalesces bursts of same-key increments in memory before
// they reach the backend. It is adapted from the teacher's Vector-Scalar
// Accumulator (pkg/vsa): a request-path increment only touches an
// in-memory vector; a background flusher periodically nets the vector
// out to the backend as one delta. Unlike the teacher's rate-limiter use
// of VSA (Available = Scalar - |Vector|, gating admission), the telemetry
// global counters have no admission decision to make — Counter keeps only
// the increment/commit half of the pattern (Add/CheckCommit/Commit), and
// drops TryConsume/Available, which this package has no use for.
package accum

import "sync"

// Counter is a thread-safe in-memory delta accumulator for one backend
// key. Committed is the last value flushed to the backend; Pending is the
// not-yet-flushed delta sitting on top of it.
type Counter struct {
	mu        sync.Mutex
	committed int64
	pending   int64
}

// NewCounter creates a Counter with no pending delta.
func NewCounter() *Counter {
	return &Counter{}
}

// Add accumulates delta into the in-memory vector. This never touches the
// backend and is the only operation the request path calls.
func (c *Counter) Add(delta int64) {
	c.mu.Lock()
	c.pending += delta
	c.mu.Unlock()
}

// State returns the last committed value and the current pending delta.
func (c *Counter) State() (committed, pending int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed, c.pending
}

// CheckCommit reports whether the pending delta has reached threshold and,
// if so, the delta value the caller should flush. It does not mutate
// state; the caller flushes first, then calls Commit with the exact value
// it persisted.
func (c *Counter) CheckCommit(threshold int64) (shouldCommit bool, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending >= threshold {
		return true, c.pending
	}
	return false, 0
}

// Commit folds a successfully persisted delta back into committed and
// removes it from pending. committedDelta must be the exact value the
// caller just flushed (normally the value CheckCommit returned).
func (c *Counter) Commit(committedDelta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed += committedDelta
	c.pending -= committedDelta
}
