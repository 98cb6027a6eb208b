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

// Package clock provides the two time primitives the rule engine needs:
// a microsecond offset from a fixed epoch (used as a sortable score in the
// telemetry store) and wall-clock seconds (used to bucket global counters).
package clock

import "time"

// Epoch is the fixed reference point offsets are measured from. Keeping it
// fixed (rather than the Unix epoch) keeps offsets small enough to fit an
// int64 and to stay exactly representable as the float64 scores the
// sorted-set backend stores (53 bits of mantissa) for a long time to come.
var Epoch = time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC)

// Clock is the time source the rest of the engine depends on. Production
// code uses System; tests use Fixed or Manual to get deterministic offsets.
type Clock interface {
	NowMicros() int64
	NowSeconds() int64
}

// System is the real wall-clock implementation.
type System struct{}

// NowMicros returns microseconds elapsed since Epoch.
func (System) NowMicros() int64 {
	return time.Since(Epoch).Microseconds()
}

// NowSeconds returns the current Unix time in whole seconds.
func (System) NowSeconds() int64 {
	return time.Now().Unix()
}

// Fixed is a Clock that always reports the same instant. Useful for tests
// that need to pre-load events at exact offsets.
type Fixed struct {
	Micros  int64
	Seconds int64
}

func (f Fixed) NowMicros() int64  { return f.Micros }
func (f Fixed) NowSeconds() int64 { return f.Seconds }

// Manual is a Clock a test can advance explicitly between calls.
type Manual struct {
	micros  int64
	seconds int64
}

// NewManual creates a Manual clock starting at the given offset/second.
func NewManual(micros, seconds int64) *Manual {
	return &Manual{micros: micros, seconds: seconds}
}

func (m *Manual) NowMicros() int64  { return m.micros }
func (m *Manual) NowSeconds() int64 { return m.seconds }

// Advance moves the clock forward by d, keeping both representations in sync.
func (m *Manual) Advance(d time.Duration) {
	m.micros += d.Microseconds()
	m.seconds += int64(d / time.Second)
}
