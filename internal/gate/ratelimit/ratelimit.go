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

// Package ratelimit is the device-number rate limiter from spec §4.8's
// carve-out: the same telemetry+rule machinery as the circuit breaker
// (internal/gate/telemetry, internal/gate/rules), opened over a disjoint
// "ratestatus" key namespace keyed by (device number, command) instead of
// command alone.
package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/ealvarez/fusegate/internal/gate/classify"
	"github.com/ealvarez/fusegate/internal/gate/obsv"
	"github.com/ealvarez/fusegate/internal/gate/rules"
	"github.com/ealvarez/fusegate/internal/gate/telemetry"
)

// DeviceHeader is the request header carrying the caller's device number.
const DeviceHeader = "x-device-no"

// RuleHeader overrides the resolved rule list for this request, same
// comma-separated feature:duration:threshold[:probability] shape as the
// circuit breaker's headers.
const RuleHeader = "x-rate-rules"

// totalKeySentinel stands in for "this device, any command" in the
// per-device total-hits stream. classify.CommandKey keeps underscores, so a
// request path whose command key is exactly this string shares the stream.
const totalKeySentinel = "__device_total__"

// Limiter evaluates rate-limit rules for a (device, command) pair and
// records a hit for every request that reaches it.
type Limiter struct {
	store    *telemetry.Store
	registry *rules.Registry
	eval     *rules.Evaluator
	ruleSet  string
	metrics  *obsv.Metrics
}

// New creates a Limiter backed by store (opened by the caller with
// Prefix: "ratestatus") evaluating rule set ruleSet from registry. metrics
// may be nil, in which case evaluations are simply not recorded.
func New(store *telemetry.Store, registry *rules.Registry, eval *rules.Evaluator, ruleSet string, metrics *obsv.Metrics) *Limiter {
	return &Limiter{store: store, registry: registry, eval: eval, ruleSet: ruleSet, metrics: metrics}
}

// Decision is the outcome of Check: whether the request is rate-limited,
// and the device/command keys a caller may want for logging.
type Decision struct {
	Limited    bool
	DeviceNo   string
	DeviceKey  string
	CommandKey string
}

// Check resolves rate rules for command, evaluates them against the
// device's recent hit history, and records this hit. A missing device
// header is rejected (Limited=true) unless the resolved rule list for
// command is the explicit "ignored" sentinel (spec §4.6: "devices without
// the required header are rejected outright (429)").
func (l *Limiter) Check(ctx context.Context, r *http.Request, command string) Decision {
	rulesList, outcome := l.resolve(r, command)
	if outcome == rules.ResolveIgnored {
		return Decision{}
	}

	deviceNo := r.Header.Get(DeviceHeader)
	if deviceNo == "" {
		return Decision{Limited: true}
	}
	deviceKey := classify.CommandKey(deviceNo)
	commandKey := classify.CommandKey(command)

	if outcome == rules.ResolveNone {
		l.recordHit(deviceKey, commandKey)
		return Decision{DeviceNo: deviceNo, DeviceKey: deviceKey, CommandKey: commandKey}
	}

	singleKey := deviceKey + "_" + commandKey
	totalKey := deviceKey + "_" + totalKeySentinel
	keyFor := func(f rules.Feature) string {
		if f == rules.FeatureTotalCommandHits {
			return totalKey
		}
		return singleKey
	}

	evalStart := time.Now()
	verdict := l.eval.EvaluateKeyed(ctx, keyFor, rulesList, nil)
	l.recordEvaluation(verdict, time.Since(evalStart))
	l.recordHit(deviceKey, commandKey)

	return Decision{
		Limited:    verdict.Fused,
		DeviceNo:   deviceNo,
		DeviceKey:  deviceKey,
		CommandKey: commandKey,
	}
}

func (l *Limiter) resolve(r *http.Request, command string) ([]rules.Rule, rules.ResolveOutcome) {
	if header := r.Header.Get(RuleHeader); header != "" {
		if override, err := rules.ParseOverrideHeader(header); err == nil && override != nil {
			return override, rules.ResolveList
		}
	}
	return l.registry.Resolve(l.ruleSet, command)
}

// recordEvaluation records the device rate limiter's evaluation outcome
// and latency under the "rate_limit" evaluator label, the same metrics
// the circuit breaker records under "circuit_breaker" (proxy.Gate).
func (l *Limiter) recordEvaluation(verdict rules.Verdict, elapsed time.Duration) {
	if l.metrics == nil {
		return
	}
	outcome := "pass"
	if verdict.Fused {
		outcome = "fused"
	}
	l.metrics.RuleEvaluations.WithLabelValues("rate_limit", outcome).Inc()
	l.metrics.EvaluationLatency.WithLabelValues("rate_limit").Observe(elapsed.Seconds())
}

// recordHit writes one event into both the per-(device,command) stream
// and the per-device total stream, so single_command_hits and
// total_command_hits can each be read back as a plain window count.
func (l *Limiter) recordHit(deviceKey, commandKey string) {
	l.store.Write(deviceKey+"_"+commandKey, 0, telemetry.Success)
	l.store.Write(deviceKey+"_"+totalKeySentinel, 0, telemetry.Success)
}
