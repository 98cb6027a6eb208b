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
	"fmt"
	"strconv"
	"strings"
)

// ParseOverrideHeader parses an x-fuse-rules/x-alarm-rules/x-rate-rules
// header value: a comma-separated list of "feature:duration:threshold
// [:probability]" tuples. Header input is untrusted, so any single
// malformed tuple rejects the whole header rather than silently applying
// a partial rule list. An empty header returns a nil, nil rule list,
// meaning "no override" — callers fall back to the registry.
func ParseOverrideHeader(value string) ([]Rule, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	tuples := strings.Split(value, ",")
	out := make([]Rule, 0, len(tuples))
	for _, raw := range tuples {
		tuple := strings.TrimSpace(raw)
		rule, err := parseTuple(tuple)
		if err != nil {
			return nil, &ErrMalformedOverride{Tuple: tuple, Cause: err}
		}
		out = append(out, rule)
	}
	return out, nil
}

func parseTuple(tuple string) (Rule, error) {
	parts := strings.Split(tuple, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Rule{}, fmt.Errorf("expected feature:duration:threshold[:probability], got %d fields", len(parts))
	}

	feature := parts[0]
	if _, ok := ParseFeature(feature); !ok {
		return Rule{}, fmt.Errorf("unknown feature %q", feature)
	}

	duration, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Rule{}, fmt.Errorf("bad duration %q: %w", parts[1], err)
	}

	threshold, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Rule{}, fmt.Errorf("bad threshold %q: %w", parts[2], err)
	}

	probability := float64(defaultProbability)
	if len(parts) == 4 {
		probability, err = strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return Rule{}, fmt.Errorf("bad probability %q: %w", parts[3], err)
		}
	}

	return Rule{Feature: feature, Duration: duration, Threshold: threshold, Probability: probability}, nil
}
