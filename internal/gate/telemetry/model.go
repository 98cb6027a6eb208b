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

// Package telemetry is the sliding-window store: it records per-command
// exec events and global per-second counters into a shared sorted-set
// backend, and answers windowed queries over recent history.
package telemetry

// ExecStatus is the three-value outcome classification from spec §3.
type ExecStatus int

const (
	Success ExecStatus = 1
	BizFail ExecStatus = 2
	SysFail ExecStatus = 3
)

func (s ExecStatus) String() string {
	switch s {
	case Success:
		return "success"
	case BizFail:
		return "biz_fail"
	case SysFail:
		return "sys_fail"
	default:
		return "unknown"
	}
}

// Event is one recorded exec outcome: a command's storage-safe key, its
// offset in microseconds since clock.Epoch, the upstream latency, and the
// derived exec status.
type Event struct {
	CommandKey string
	OffsetUs   int64
	ExecTimeMs int64
	Status     ExecStatus
}

// Window is the per-command aggregate spec §4.5 "Read window" describes.
// TotalExecCount is never zero: an empty window reports 1, so percent
// metrics evaluate to 0 rather than dividing by zero.
type Window struct {
	AvgExecTimeMs  int64
	BizFailCount   int64
	SysFailCount   int64
	TotalExecCount int64

	// RawExecCount is the true number of status members in the window,
	// without the zero-division-safety substitution TotalExecCount applies.
	// The device rate limiter's hit-counting features (single/total
	// command hits) need the real count: an empty window means zero hits,
	// not one.
	RawExecCount int64
}

// GlobalWindow is the process-wide aggregate over the global per-second
// counters, with the same zero-total substitution as Window.
type GlobalWindow struct {
	ExecCount    int64
	BizFailCount int64
	SysFailCount int64
}
