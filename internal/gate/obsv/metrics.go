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

// Package obsv is the ambient metrics surface: the rule engine's request
// path never raises, so these counters and histograms are the only way to
// observe how often it fuses, alarms, or fails open. Registered with
// promauto the same way the teacher's rules-engine reference file wires
// its Prometheus vectors, on a registry the caller controls so tests don't
// fight over the global default registry.
package obsv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the full set of counters/histograms the engine emits.
type Metrics struct {
	RuleEvaluations   *prometheus.CounterVec
	Fuses             *prometheus.CounterVec
	Alarms            *prometheus.CounterVec
	EvaluationLatency *prometheus.HistogramVec
	TelemetryDropped  prometheus.Counter
	AlarmsDropped     prometheus.Counter
	BackendErrors     *prometheus.CounterVec
}

// New registers every metric on reg and returns the handle the rest of the
// engine records through. Pass prometheus.NewRegistry() in tests to avoid
// colliding with other tests registering the same metric names against
// the global DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RuleEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusegate_rule_evaluations_total",
			Help: "Rule evaluations by evaluator and outcome.",
		}, []string{"evaluator", "outcome"}),
		Fuses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusegate_fuses_total",
			Help: "Requests short-circuited by an evaluator.",
		}, []string{"evaluator"}),
		Alarms: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusegate_alarms_total",
			Help: "Alarm rules triggered, by rule set.",
		}, []string{"rule_set"}),
		EvaluationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusegate_evaluation_latency_seconds",
			Help:    "Time spent evaluating rules against live telemetry windows.",
			Buckets: prometheus.DefBuckets,
		}, []string{"evaluator"}),
		TelemetryDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "fusegate_telemetry_writes_dropped_total",
			Help: "Telemetry writes dropped because the write queue was saturated.",
		}),
		AlarmsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "fusegate_alarms_dropped_total",
			Help: "Alarms dropped because the alarm dispatch queue was saturated.",
		}),
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusegate_backend_errors_total",
			Help: "Backend (store) errors by operation.",
		}, []string{"op"}),
	}
}
