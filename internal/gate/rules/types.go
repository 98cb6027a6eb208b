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

// Package rules loads rule documents, resolves them per (rule set,
// command), and evaluates them against telemetry windows with probability
// gating.
package rules

import (
	"encoding/json"
	"fmt"
)

// Feature is the closed set of metric kinds a Rule can reference. It
// replaces dynamic dispatch on a feature name string with a pure
// (kind, window) -> value function (see evaluator.go).
type Feature int

const (
	FeatureUnknown Feature = iota
	FeatureAvgExecTime
	FeatureBizFailCount
	FeatureBizFailPercent
	FeatureSysFailCount
	FeatureSysFailPercent
	FeatureFailCount
	FeatureFailPercent
	FeatureGlobalAvgExecTime
	FeatureGlobalBizFailCount
	FeatureGlobalBizFailPercent
	FeatureGlobalSysFailCount
	FeatureGlobalSysFailPercent
	FeatureGlobalFailCount
	FeatureGlobalFailPercent
	FeatureSingleCommandHits
	FeatureTotalCommandHits
)

var featureNames = map[string]Feature{
	"avg_exec_time":           FeatureAvgExecTime,
	"biz_fail_count":          FeatureBizFailCount,
	"biz_fail_percent":        FeatureBizFailPercent,
	"sys_fail_count":          FeatureSysFailCount,
	"sys_fail_percent":        FeatureSysFailPercent,
	"fail_count":              FeatureFailCount,
	"fail_percent":            FeatureFailPercent,
	"global_avg_exec_time":    FeatureGlobalAvgExecTime,
	"global_biz_fail_count":   FeatureGlobalBizFailCount,
	"global_biz_fail_percent": FeatureGlobalBizFailPercent,
	"global_sys_fail_count":   FeatureGlobalSysFailCount,
	"global_sys_fail_percent": FeatureGlobalSysFailPercent,
	"global_fail_count":       FeatureGlobalFailCount,
	"global_fail_percent":     FeatureGlobalFailPercent,
	"single_command_hits":     FeatureSingleCommandHits,
	"total_command_hits":      FeatureTotalCommandHits,
}

// ParseFeature parses the JSON/header string form of a feature name.
func ParseFeature(name string) (Feature, bool) {
	f, ok := featureNames[name]
	return f, ok
}

func (f Feature) String() string {
	for name, v := range featureNames {
		if v == f {
			return name
		}
	}
	return "unknown"
}

// Global reports whether this feature is computed over the global window
// rather than a per-command one.
func (f Feature) Global() bool {
	switch f {
	case FeatureGlobalAvgExecTime, FeatureGlobalBizFailCount, FeatureGlobalBizFailPercent,
		FeatureGlobalSysFailCount, FeatureGlobalSysFailPercent, FeatureGlobalFailCount, FeatureGlobalFailPercent:
		return true
	default:
		return false
	}
}

// Rule is one fuse/alarm/rate condition: trigger when Feature's computed
// value over the last Duration seconds is >= Threshold, gated by
// Probability (0-100; a rule document or override that omits it defaults
// to 100 per spec §3, so the rule always fires once the threshold is met;
// an explicit 0 means the rule never fires).
type Rule struct {
	Feature     string  `json:"feature"`
	Duration    int64   `json:"duration"`
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
}

// defaultProbability is the value spec §3 assigns an omitted probability:
// "optional number in [0, 100]; default 100."
const defaultProbability = 100

// UnmarshalJSON defaults Probability to 100 when the field is absent from
// the document, distinguishing "not present" from the zero value JSON
// would otherwise leave it at (which would make the rule never fire, the
// opposite of spec's default).
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias struct {
		Feature     string   `json:"feature"`
		Duration    int64    `json:"duration"`
		Threshold   float64  `json:"threshold"`
		Probability *float64 `json:"probability"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	r.Feature = a.Feature
	r.Duration = a.Duration
	r.Threshold = a.Threshold
	if a.Probability != nil {
		r.Probability = *a.Probability
	} else {
		r.Probability = defaultProbability
	}
	return nil
}

// RuleDocument is one named rule set: a fallback list applied to any
// command without its own entry, plus per-command overrides.
type RuleDocument struct {
	Global   []Rule            `json:"global"`
	Commands map[string][]Rule `json:"commands"`
}

// ResolveOutcome distinguishes "no rules configured" from "this command is
// explicitly ignored" — a nil-vs-empty-slice convention would conflate
// the two.
type ResolveOutcome int

const (
	ResolveNone ResolveOutcome = iota
	ResolveIgnored
	ResolveList
)

func (o ResolveOutcome) String() string {
	switch o {
	case ResolveNone:
		return "none"
	case ResolveIgnored:
		return "ignored"
	case ResolveList:
		return "list"
	default:
		return "unknown"
	}
}

// ErrMalformedOverride is returned by ParseOverrideHeader when any tuple in
// a header value fails to parse; the whole header is rejected rather than
// partially applied.
type ErrMalformedOverride struct {
	Tuple string
	Cause error
}

func (e *ErrMalformedOverride) Error() string {
	return fmt.Sprintf("rules: malformed override tuple %q: %v", e.Tuple, e.Cause)
}

func (e *ErrMalformedOverride) Unwrap() error { return e.Cause }
