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

import "testing"

func TestParseOverrideHeaderEmpty(t *testing.T) {
	list, err := ParseOverrideHeader("")
	if err != nil || list != nil {
		t.Fatalf("empty header must mean no override, got %v %v", list, err)
	}
}

func TestParseOverrideHeaderSingleTuple(t *testing.T) {
	list, err := ParseOverrideHeader("fail_count:30:1:100")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Feature != "fail_count" || list[0].Duration != 30 ||
		list[0].Threshold != 1 || list[0].Probability != 100 {
		t.Fatalf("unexpected parse result: %+v", list)
	}
}

func TestParseOverrideHeaderDefaultsProbabilityTo100(t *testing.T) {
	list, err := ParseOverrideHeader("fail_count:30:1")
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Probability != 100 {
		t.Fatalf("probability without explicit value should default to 100, got %v", list[0].Probability)
	}
}

func TestParseOverrideHeaderMultipleTuples(t *testing.T) {
	list, err := ParseOverrideHeader("fail_count:30:1:100, avg_exec_time:60:500:50")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(list))
	}
}

func TestParseOverrideHeaderRejectsUnknownFeature(t *testing.T) {
	_, err := ParseOverrideHeader("not_a_feature:30:1:100")
	if err == nil {
		t.Fatalf("expected error for unknown feature")
	}
}

func TestParseOverrideHeaderRejectsMalformedTuple(t *testing.T) {
	_, err := ParseOverrideHeader("fail_count:thirty:1:100")
	if err == nil {
		t.Fatalf("expected error for non-numeric duration")
	}
}

func TestParseOverrideHeaderRejectsWholeHeaderOnAnyBadTuple(t *testing.T) {
	_, err := ParseOverrideHeader("fail_count:30:1:100,garbage")
	if err == nil {
		t.Fatalf("a single malformed tuple must reject the entire header")
	}
}
