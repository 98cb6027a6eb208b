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

package rules

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ealvarez/fusegate/internal/gate/telemetry"
)

// WindowSource is the subset of telemetry.Store the evaluator needs to
// compute rule values: a per-command window and a process-wide global
// window, each addressed by duration. The device rate limiter satisfies
// this with a Store opened over its own "ratestatus" namespace, so the
// same Evaluator serves both the circuit breaker and the rate limiter
// (spec §4.6: "The same sliding-window machinery applies with a different
// key-namespace").
type WindowSource interface {
	ReadWindow(ctx context.Context, commandKey string, durationSeconds int64) (telemetry.Window, error)
	ReadGlobalWindow(ctx context.Context, durationSeconds int64) (telemetry.GlobalWindow, error)
}

// Verdict is the result of evaluating one rule list against live windows.
type Verdict struct {
	Fused      bool
	FusedRule  Rule
	Alarms     []Alarm
}

// Alarm is one triggered alarm rule, carrying enough context for the
// dispatcher to build its payload.
type Alarm struct {
	Rule        Rule
	ActualValue float64
}

// Evaluator computes metric values over telemetry windows and applies
// probability-gated threshold rules. One Evaluator instance is created per
// request (or reused across requests with its own locked RNG); the
// request-scoped memoization cache must never be shared across requests.
type Evaluator struct {
	windows WindowSource
	rngMu   sync.Mutex
	rng     *rand.Rand
}

// NewEvaluator creates an Evaluator reading windows from src. rng should be
// a per-worker-seeded source (spec §5: "Random source: seeded once per
// worker at startup; may be a per-worker instance to avoid contention");
// the Evaluator still guards it with a mutex since a single Evaluator may
// be shared by a small pool of goroutines, and the critical section (one
// Float64 call) is cheap enough that this never shows up as contention.
func NewEvaluator(src WindowSource, rng *rand.Rand) *Evaluator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Evaluator{windows: src, rng: rng}
}

// windowKey identifies one memoized per-command window read: a distinct
// command key and duration. Most evaluations use a single command key for
// every feature; the device rate limiter's single_command_hits/
// total_command_hits features read two different streams (one per
// device+command, one per device across all commands) within the same
// evaluation, which is why this is keyed on commandKey rather than just
// duration.
type windowKey struct {
	commandKey string
	duration   int64
}

// call is the per-Evaluate memoization scope: (commandKey,duration) ->
// window, so a fused request and an alarmed request evaluating the same
// rule set see identical metric values (spec §5), without caching
// anything across requests.
type call struct {
	keyFor     func(Feature) string
	perCommand map[windowKey]telemetry.Window
	global     map[int64]telemetry.GlobalWindow
}

func newCall(commandKey string) *call {
	return newKeyedCall(func(Feature) string { return commandKey })
}

func newKeyedCall(keyFor func(Feature) string) *call {
	return &call{
		keyFor:     keyFor,
		perCommand: make(map[windowKey]telemetry.Window),
		global:     make(map[int64]telemetry.GlobalWindow),
	}
}

func (e *Evaluator) windowFor(ctx context.Context, c *call, feature Feature, duration int64) (telemetry.Window, error) {
	key := windowKey{commandKey: c.keyFor(feature), duration: duration}
	if w, ok := c.perCommand[key]; ok {
		return w, nil
	}
	w, err := e.windows.ReadWindow(ctx, key.commandKey, duration)
	if err != nil {
		return telemetry.Window{}, err
	}
	c.perCommand[key] = w
	return w, nil
}

func (e *Evaluator) globalWindowFor(ctx context.Context, c *call, duration int64) (telemetry.GlobalWindow, error) {
	if w, ok := c.global[duration]; ok {
		return w, nil
	}
	w, err := e.windows.ReadGlobalWindow(ctx, duration)
	if err != nil {
		return telemetry.GlobalWindow{}, err
	}
	c.global[duration] = w
	return w, nil
}

// Value computes one Feature's actual value for the given rule's duration,
// over commandKey's window. Backend errors are swallowed into the
// zero-metric defaults (spec §7: "Backend unavailable at request time: the
// evaluator returns 'no data' ... no rule fires ... the system fails
// open"): a failed read behaves exactly like an empty window.
func (e *Evaluator) Value(ctx context.Context, c *call, feature Feature, duration int64) float64 {
	if feature.Global() {
		w, err := e.globalWindowFor(ctx, c, duration)
		if err != nil {
			w = telemetry.GlobalWindow{ExecCount: 1}
		}
		return globalFeatureValue(feature, w)
	}
	w, err := e.windowFor(ctx, c, feature, duration)
	if err != nil {
		w = telemetry.Window{TotalExecCount: 1}
	}
	return featureValue(feature, w)
}

func featureValue(f Feature, w telemetry.Window) float64 {
	switch f {
	case FeatureAvgExecTime:
		return float64(w.AvgExecTimeMs)
	case FeatureBizFailCount:
		return float64(w.BizFailCount)
	case FeatureBizFailPercent:
		return 100 * float64(w.BizFailCount) / float64(w.TotalExecCount)
	case FeatureSysFailCount:
		return float64(w.SysFailCount)
	case FeatureSysFailPercent:
		return 100 * float64(w.SysFailCount) / float64(w.TotalExecCount)
	case FeatureFailCount:
		return float64(w.BizFailCount + w.SysFailCount)
	case FeatureFailPercent:
		return 100 * float64(w.BizFailCount+w.SysFailCount) / float64(w.TotalExecCount)
	case FeatureSingleCommandHits, FeatureTotalCommandHits:
		// Hit-counting features (device rate limiter only): every recorded
		// event in the window is a hit, regardless of its exec status. Uses
		// the raw, non-substituted count: an empty window is zero hits, not
		// the "1" TotalExecCount reports for percent-metric safety.
		return float64(w.RawExecCount)
	default:
		return 0
	}
}

func globalFeatureValue(f Feature, w telemetry.GlobalWindow) float64 {
	switch f {
	case FeatureGlobalAvgExecTime:
		// The source windows never track a global average latency bucket
		// distinct from the per-command one; global_avg_exec_time has no
		// backing counter, so it always reads 0 (a rule referencing it
		// would simply never trigger above a positive threshold).
		return 0
	case FeatureGlobalBizFailCount:
		return float64(w.BizFailCount)
	case FeatureGlobalBizFailPercent:
		return 100 * float64(w.BizFailCount) / float64(w.ExecCount)
	case FeatureGlobalSysFailCount:
		return float64(w.SysFailCount)
	case FeatureGlobalSysFailPercent:
		return 100 * float64(w.SysFailCount) / float64(w.ExecCount)
	case FeatureGlobalFailCount:
		return float64(w.BizFailCount + w.SysFailCount)
	case FeatureGlobalFailPercent:
		return 100 * float64(w.BizFailCount+w.SysFailCount) / float64(w.ExecCount)
	default:
		return 0
	}
}

// triggers applies threshold comparison and probability gating: the rule
// must meet its threshold, and then a Bernoulli draw gated by Probability
// decides whether this particular request actually fires it (spec §4.6,
// §8: probability=0 never fires, probability>=100 always fires once past
// threshold).
func (e *Evaluator) triggers(rule Rule, actual float64) bool {
	if actual < rule.Threshold {
		return false
	}
	if rule.Probability >= 100 {
		return true
	}
	if rule.Probability <= 0 {
		return false
	}
	e.rngMu.Lock()
	r := e.rng.Float64()
	e.rngMu.Unlock()
	return r <= rule.Probability/100
}

// Evaluate runs fuseRules then alarmRules against commandKey's live
// windows. Fuse rules short-circuit on the first trigger (remaining fuse
// rules are not evaluated, per spec §4.6 step 4); alarm rules are all
// evaluated regardless of how many trigger (step 3: "Evaluation continues
// to remaining alarm rules").
func (e *Evaluator) Evaluate(ctx context.Context, commandKey string, fuseRules, alarmRules []Rule) Verdict {
	return e.evaluate(ctx, newCall(commandKey), fuseRules, alarmRules)
}

// EvaluateKeyed is Evaluate generalized over a per-feature key resolver,
// for callers (the device rate limiter) whose rule set mixes features that
// read different underlying streams within one evaluation.
func (e *Evaluator) EvaluateKeyed(ctx context.Context, keyFor func(Feature) string, fuseRules, alarmRules []Rule) Verdict {
	return e.evaluate(ctx, newKeyedCall(keyFor), fuseRules, alarmRules)
}

func (e *Evaluator) evaluate(ctx context.Context, c *call, fuseRules, alarmRules []Rule) Verdict {
	var v Verdict

	for _, rule := range fuseRules {
		feature, ok := ParseFeature(rule.Feature)
		if !ok {
			continue
		}
		actual := e.Value(ctx, c, feature, rule.Duration)
		if e.triggers(rule, actual) {
			v.Fused = true
			v.FusedRule = rule
			return v
		}
	}

	for _, rule := range alarmRules {
		feature, ok := ParseFeature(rule.Feature)
		if !ok {
			continue
		}
		actual := e.Value(ctx, c, feature, rule.Duration)
		if e.triggers(rule, actual) {
			v.Alarms = append(v.Alarms, Alarm{Rule: rule, ActualValue: actual})
		}
	}

	return v
}
