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

package proxy

import (
	"log"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"github.com/ealvarez/fusegate/internal/gate/alarm"
	"github.com/ealvarez/fusegate/internal/gate/classify"
	"github.com/ealvarez/fusegate/internal/gate/clock"
	"github.com/ealvarez/fusegate/internal/gate/obsv"
	"github.com/ealvarez/fusegate/internal/gate/ratelimit"
	"github.com/ealvarez/fusegate/internal/gate/rules"
	"github.com/ealvarez/fusegate/internal/gate/telemetry"
)

const (
	fuseHeader  = "x-fuse-rules"
	alarmHeader = "x-alarm-rules"
	respCodeHdr = "x-response-code"
)

// Gate wires the command classifier, rule registry, circuit-breaker
// evaluator, device rate limiter, telemetry store, and alarm dispatcher
// into one net/http middleware around an upstream ReverseProxy.
type Gate struct {
	registry *rules.Registry
	eval     *rules.Evaluator
	store    *telemetry.Store
	limiter  *ratelimit.Limiter
	alarms   *alarm.Dispatcher
	clk      clock.Clock
	metrics  *obsv.Metrics

	fuseRuleSet  string
	alarmRuleSet string
}

// Options wires Gate's collaborators.
type Options struct {
	Registry     *rules.Registry
	Evaluator    *rules.Evaluator
	Store        *telemetry.Store
	Limiter      *ratelimit.Limiter // nil disables the device rate limiter
	Alarms       *alarm.Dispatcher
	Clock        clock.Clock
	Metrics      *obsv.Metrics
	FuseRuleSet  string
	AlarmRuleSet string
}

// New creates a Gate from opts.
func New(opts Options) *Gate {
	return &Gate{
		registry:     opts.Registry,
		eval:         opts.Evaluator,
		store:        opts.Store,
		limiter:      opts.Limiter,
		alarms:       opts.Alarms,
		clk:          opts.Clock,
		metrics:      opts.Metrics,
		fuseRuleSet:  opts.FuseRuleSet,
		alarmRuleSet: opts.AlarmRuleSet,
	}
}

// Wrap returns an http.Handler that runs the pre-upstream gate, delegates
// to rp for passed-through requests, and records the post-upstream
// outcome. rp should already have ModifyResponse/ErrorHandler set to
// g.ModifyResponse/g.ErrorHandler.
func (g *Gate) Wrap(rp *httputil.ReverseProxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{start: time.Now()}
		command, ignorable := classify.Classify(r.URL.Path)
		st.command = command
		st.commandKey = classify.CommandKey(command)
		st.ignorable = ignorable
		r = withState(r, st)

		if ignorable {
			rp.ServeHTTP(w, r)
			return
		}

		if g.limiter != nil {
			decision := g.limiter.Check(r.Context(), r, command)
			if decision.Limited {
				g.recordFuse("rate_limit")
				respondFused(w, http.StatusTooManyRequests, 0)
				return
			}
		}

		fuseRules, alarmRules := g.resolveRules(r, command)
		evalStart := time.Now()
		verdict := g.eval.Evaluate(r.Context(), st.commandKey, fuseRules, alarmRules)
		g.recordEvaluation("circuit_breaker", verdict, time.Since(evalStart))
		g.dispatchAlarms(r, st.commandKey, verdict)
		if verdict.Fused {
			g.recordFuse("circuit_breaker")
			st.fused = true
			respondFused(w, http.StatusServiceUnavailable, 5*time.Second)
			return
		}

		rp.ServeHTTP(w, r)
	})
}

func (g *Gate) resolveRules(r *http.Request, command string) (fuseRules, alarmRules []rules.Rule) {
	fuseRules = g.resolveOne(r, fuseHeader, g.fuseRuleSet, command)
	alarmRules = g.resolveOne(r, alarmHeader, g.alarmRuleSet, command)
	return fuseRules, alarmRules
}

// resolveOne resolves one rule list (fuse or alarm) for command: a
// present, well-formed override header wins outright; a present but
// malformed header is rejected (spec §9: untrusted input, reject rather
// than partially apply) and logged, then falls back to the registry
// rather than silently running this request with no rules at all.
func (g *Gate) resolveOne(r *http.Request, header, ruleSet, command string) []rules.Rule {
	if value := r.Header.Get(header); value != "" {
		override, err := rules.ParseOverrideHeader(value)
		if err == nil {
			return override
		}
		log.Printf("proxy: %s: %v, falling back to registry", header, err)
	}
	if list, outcome := g.registry.Resolve(ruleSet, command); outcome == rules.ResolveList {
		return list
	}
	return nil
}

func (g *Gate) dispatchAlarms(r *http.Request, commandKey string, verdict rules.Verdict) {
	if g.alarms == nil {
		return
	}
	for _, a := range verdict.Alarms {
		if g.metrics != nil {
			g.metrics.Alarms.WithLabelValues(g.alarmRuleSet).Inc()
		}
		g.alarms.Fire(alarm.Payload{
			Feature:     a.Rule.Feature,
			Duration:    a.Rule.Duration,
			Threshold:   a.Rule.Threshold,
			Probability: a.Rule.Probability,
			Command:     commandKey,
			ActualValue: a.ActualValue,
			ClientIP:    clientIP(r),
			TriggerTime: g.clk.NowSeconds(),
		})
	}
}

func (g *Gate) recordFuse(evaluator string) {
	if g.metrics != nil {
		g.metrics.Fuses.WithLabelValues(evaluator).Inc()
	}
}

// recordEvaluation records one rule-evaluation outcome and its latency.
// outcome is "fused" (a fuse rule tripped), "alarmed" (no fuse, but at
// least one alarm rule tripped), or "pass" (nothing tripped) — the three
// outcomes evaluate never returns simultaneously, since a fuse trigger
// short-circuits before alarm rules run.
func (g *Gate) recordEvaluation(evaluator string, verdict rules.Verdict, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	outcome := "pass"
	switch {
	case verdict.Fused:
		outcome = "fused"
	case len(verdict.Alarms) > 0:
		outcome = "alarmed"
	}
	g.metrics.RuleEvaluations.WithLabelValues(evaluator, outcome).Inc()
	g.metrics.EvaluationLatency.WithLabelValues(evaluator).Observe(elapsed.Seconds())
}

func respondFused(w http.ResponseWriter, status int, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	w.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	host := r.Header.Get("x-forwarded-for")
	if host != "" {
		return host
	}
	return r.RemoteAddr
}

// ModifyResponse is installed as the ReverseProxy's ModifyResponse hook:
// it classifies the upstream's exec status and enqueues the async
// telemetry write, unless the request was flagged ignorable.
func (g *Gate) ModifyResponse(resp *http.Response) error {
	st := stateFrom(resp.Request)
	if st == nil || st.ignorable {
		return nil
	}
	status := classifyExec(resp.StatusCode, resp.Header.Get(respCodeHdr))
	execTimeMs := time.Since(st.start).Milliseconds()
	g.store.Write(st.commandKey, execTimeMs, status)
	return nil
}

// ErrorHandler is installed as the ReverseProxy's ErrorHandler hook: a
// request that never got a response (dial failure, timeout) is still a
// real exec outcome spec.md's classifier doesn't otherwise enumerate, so
// it is recorded as SYS_FAIL rather than silently dropped.
func (g *Gate) ErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	st := stateFrom(r)
	if st != nil && !st.ignorable {
		execTimeMs := time.Since(st.start).Milliseconds()
		g.store.Write(st.commandKey, execTimeMs, telemetry.SysFail)
	}
	log.Printf("proxy: upstream error for %s: %v", r.URL.Path, err)
	w.WriteHeader(http.StatusBadGateway)
}

// classifyExec derives spec §3's three-value exec status from the
// upstream HTTP status and the x-response-code header.
func classifyExec(httpStatus int, responseCode string) telemetry.ExecStatus {
	if httpStatus != http.StatusOK {
		return telemetry.SysFail
	}
	if responseCode != "" && responseCode != "1" {
		return telemetry.BizFail
	}
	return telemetry.Success
}
