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

package telemetry

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ealvarez/fusegate/internal/gate/accum"
	"github.com/ealvarez/fusegate/internal/gate/clock"
	"github.com/ealvarez/fusegate/internal/gate/storekit"
	"github.com/ealvarez/fusegate/internal/gate/workqueue"
)

const backendTimeout = 2 * time.Second

// Store is the sliding-window telemetry store. One Store instance owns one
// key namespace (Prefix): the proxy's own per-command event stream uses
// "apistatus", the device rate limiter (internal/gate/ratelimit) opens a
// second Store over the same backend with Prefix "ratestatus" and a
// command key that already encodes the device number, giving it the same
// machinery under a disjoint set of Redis keys.
type Store struct {
	backend        storekit.Store
	clk            clock.Clock
	prefix         string
	expiredSeconds int64

	queue     *workqueue.Queue[writeJob]
	counters  *accum.Registry
	flusher   *accum.Flusher

	onBackendError func(op string, err error)
}

type writeJob struct {
	commandKey string
	offsetUs   int64
	second     int64
	execTimeMs int64
	status     ExecStatus
}

// Options configures a Store's write queue and counter-flush cadence.
type Options struct {
	Prefix          string
	ExpiredSeconds  int64
	QueueSize       int
	Workers         int
	FlushInterval   time.Duration
	FlushMaxAge     time.Duration
	CommitThreshold int64
	LowWatermark    int64
	OnWriteDropped  func()
	OnBackendError  func(op string, err error)
}

// NewStore creates a Store. Call Start to begin the background counter
// flusher; callers that never write (a read-only admin tool, say) may skip
// Start.
func NewStore(backend storekit.Store, clk clock.Clock, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "apistatus"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.CommitThreshold <= 0 {
		opts.CommitThreshold = 1
	}

	s := &Store{
		backend:        backend,
		clk:            clk,
		prefix:         opts.Prefix,
		expiredSeconds: opts.ExpiredSeconds,
		counters:       accum.NewRegistry(),
		onBackendError: opts.OnBackendError,
	}

	onDrop := func(writeJob) {
		if opts.OnWriteDropped != nil {
			opts.OnWriteDropped()
		}
	}
	s.queue = workqueue.New(opts.QueueSize, opts.Workers, s.processWrite, onDrop)
	s.flusher = accum.NewFlusher(s.counters, s.flushCounter, opts.CommitThreshold, opts.LowWatermark, opts.FlushInterval, opts.FlushMaxAge, s.onFlushError)
	return s
}

// Start launches the background global-counter flusher.
func (s *Store) Start() { s.flusher.Start() }

// Stop drains the write queue and, if Start was called, flushes any
// remaining counter deltas.
func (s *Store) Stop() {
	s.queue.Close()
	s.flusher.Stop()
}

// Write enqueues an async telemetry record. It never blocks the request
// path: on a saturated queue the oldest pending write is dropped in favor
// of this one.
func (s *Store) Write(commandKey string, execTimeMs int64, status ExecStatus) {
	s.queue.Submit(writeJob{
		commandKey: commandKey,
		offsetUs:   s.clk.NowMicros(),
		second:     s.clk.NowSeconds(),
		execTimeMs: execTimeMs,
		status:     status,
	})
}

func (s *Store) execTimeKey(commandKey string) string { return s.prefix + "_exec_time_" + commandKey }
func (s *Store) execStatusKey(commandKey string) string {
	return s.prefix + "_exec_status_" + commandKey
}
func (s *Store) lastExecKey() string { return s.prefix + "_last_exec_time" }

func (s *Store) globalCountKey(second int64) string {
	return fmt.Sprintf("%s_global_exec_count_%d", s.prefix, second)
}
func (s *Store) globalBizFailKey(second int64) string {
	return fmt.Sprintf("%s_global_bizfail_count_%d", s.prefix, second)
}
func (s *Store) globalSysFailKey(second int64) string {
	return fmt.Sprintf("%s_global_sysfail_count_%d", s.prefix, second)
}

func (s *Store) processWrite(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	p := s.backend.Pipeline()
	p.ZAdd(s.lastExecKey(), float64(job.offsetUs), job.commandKey)
	p.ZAdd(s.execTimeKey(job.commandKey), float64(job.offsetUs), member(job.offsetUs, job.execTimeMs))
	p.ZAdd(s.execStatusKey(job.commandKey), float64(job.offsetUs), member(job.offsetUs, int64(job.status)))
	if err := p.Exec(ctx); err != nil {
		s.logBackendError("telemetry_write", err)
		return
	}

	s.counters.GetOrCreate(s.globalCountKey(job.second)).Add(1)
	switch job.status {
	case BizFail:
		s.counters.GetOrCreate(s.globalBizFailKey(job.second)).Add(1)
	case SysFail:
		s.counters.GetOrCreate(s.globalSysFailKey(job.second)).Add(1)
	}
}

// flushCounter is the accum.FlushFunc backing s.flusher: it nets a pending
// global-counter delta into one INCRBY, then refreshes the key's TTL so
// stale per-second counters expire on their own without a sweep.
func (s *Store) flushCounter(key string, delta int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if _, err := s.backend.IncrBy(ctx, key, delta); err != nil {
		return fmt.Errorf("telemetry: incrby %s: %w", key, err)
	}
	if s.expiredSeconds > 0 {
		if err := s.backend.Expire(ctx, key, time.Duration(s.expiredSeconds)*time.Second); err != nil {
			return fmt.Errorf("telemetry: expire %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) onFlushError(key string, err error) {
	s.logBackendError("counter_flush", err)
	_ = key
}

func (s *Store) logBackendError(op string, err error) {
	if s.onBackendError != nil {
		s.onBackendError(op, err)
		return
	}
	log.Printf("telemetry: %s: %v", op, err)
}

// ReadWindow answers spec's "Read window" query for one command over the
// last durationSeconds.
func (s *Store) ReadWindow(ctx context.Context, commandKey string, durationSeconds int64) (Window, error) {
	end := s.clk.NowMicros()
	start := end - durationSeconds*1_000_000

	p := s.backend.Pipeline()
	execFut := p.ZRangeByScore(s.execTimeKey(commandKey), start, end)
	statusFut := p.ZRangeByScore(s.execStatusKey(commandKey), start, end)
	if err := p.Exec(ctx); err != nil {
		return Window{}, fmt.Errorf("telemetry: read window %s: %w", commandKey, err)
	}

	execMembers, err := execFut.Result()
	if err != nil {
		return Window{}, fmt.Errorf("telemetry: exec_time range %s: %w", commandKey, err)
	}
	statusMembers, err := statusFut.Result()
	if err != nil {
		return Window{}, fmt.Errorf("telemetry: exec_status range %s: %w", commandKey, err)
	}

	var sumExecTime int64
	var execCount int64
	for _, m := range execMembers {
		v, ok := parseMember(m)
		if !ok {
			continue
		}
		sumExecTime += v
		execCount++
	}

	var biz, sys int64
	for _, m := range statusMembers {
		v, ok := parseMember(m)
		if !ok {
			continue
		}
		switch ExecStatus(v) {
		case BizFail:
			biz++
		case SysFail:
			sys++
		}
	}

	raw := int64(len(statusMembers))
	total := raw
	if total == 0 {
		total = 1
	}
	var avg int64
	if execCount > 0 {
		avg = sumExecTime / execCount
	}

	return Window{
		AvgExecTimeMs:  avg,
		BizFailCount:   biz,
		SysFailCount:   sys,
		TotalExecCount: total,
		RawExecCount:   raw,
	}, nil
}

// ReadGlobalWindow answers spec's "Read global window" query: the sum of
// the per-second global counters over [now-duration, now]. Values that the
// accumulator is still holding in memory (not yet flushed to the backend)
// are added in, so a reader sees the same totals it would if every
// increment had gone straight to the backend.
func (s *Store) ReadGlobalWindow(ctx context.Context, durationSeconds int64) (GlobalWindow, error) {
	nowSec := s.clk.NowSeconds()
	start := nowSec - durationSeconds

	var exec, biz, sys int64
	for sec := start; sec <= nowSec; sec++ {
		ev, err := s.readGlobalCounter(ctx, s.globalCountKey(sec))
		if err != nil {
			return GlobalWindow{}, err
		}
		bv, err := s.readGlobalCounter(ctx, s.globalBizFailKey(sec))
		if err != nil {
			return GlobalWindow{}, err
		}
		sv, err := s.readGlobalCounter(ctx, s.globalSysFailKey(sec))
		if err != nil {
			return GlobalWindow{}, err
		}
		exec += ev
		biz += bv
		sys += sv
	}

	if exec == 0 {
		exec = 1
	}
	return GlobalWindow{ExecCount: exec, BizFailCount: biz, SysFailCount: sys}, nil
}

func (s *Store) readGlobalCounter(ctx context.Context, key string) (int64, error) {
	v, _, err := s.backend.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("telemetry: get %s: %w", key, err)
	}
	return v + s.counters.Pending(key), nil
}

// member formats a sorted-set member as "<offset>_<value>", the shape spec
// §4.5 uses so two writes landing on the same score still produce distinct
// members.
func member(offsetUs, value int64) string {
	return strconv.FormatInt(offsetUs, 10) + "_" + strconv.FormatInt(value, 10)
}

// parseMember extracts the trailing value from a "<offset>_<value>"
// member. A member with no underscore is treated as being the value
// itself, matching spec's tolerance for malformed/legacy entries.
func parseMember(m string) (int64, bool) {
	idx := strings.IndexByte(m, '_')
	s := m
	if idx >= 0 {
		s = m[idx+1:]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
