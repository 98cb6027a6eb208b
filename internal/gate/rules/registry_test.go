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
	"os"
	"path/filepath"
	"testing"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirectoryResolution(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "fuse-api.json", `{
		"global": [{"feature": "avg_exec_time", "duration": 60, "threshold": 500, "probability": 100}],
		"commands": {
			"api/orders": [{"feature": "fail_count", "duration": 30, "threshold": 2}],
			"api/health": []
		}
	}`)

	registry, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}

	list, outcome := registry.Resolve("fuse_api", "api/orders")
	if outcome != ResolveList || len(list) != 1 || list[0].Feature != "fail_count" {
		t.Fatalf("expected per-command override, got %v %v", outcome, list)
	}
	if list[0].Probability != 100 {
		t.Fatalf("a rule document omitting probability must default to 100, got %v", list[0].Probability)
	}

	list, outcome = registry.Resolve("fuse_api", "api/health")
	if outcome != ResolveIgnored {
		t.Fatalf("empty command list must resolve to ignored, got %v %v", outcome, list)
	}

	list, outcome = registry.Resolve("fuse_api", "api/unknown")
	if outcome != ResolveList || len(list) != 1 || list[0].Feature != "avg_exec_time" {
		t.Fatalf("expected fallback to global, got %v %v", outcome, list)
	}

	_, outcome = registry.Resolve("no_such_rule_set", "api/orders")
	if outcome != ResolveNone {
		t.Fatalf("unknown rule set must resolve to none, got %v", outcome)
	}
}

func TestLoadDirectorySkipsBadFilesAndUnknownFeatures(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "broken.json", `{not json`)
	writeRuleFile(t, dir, "valid.json", `{
		"global": [
			{"feature": "avg_exec_time", "duration": 60, "threshold": 500},
			{"feature": "not_a_real_feature", "duration": 60, "threshold": 1}
		]
	}`)

	registry, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, outcome := registry.Resolve("broken", "anything"); outcome != ResolveNone {
		t.Fatalf("a file that fails to parse must not appear in the registry")
	}

	list, outcome := registry.Resolve("valid", "anything")
	if outcome != ResolveList || len(list) != 1 {
		t.Fatalf("expected the unknown-feature rule dropped, kept %v", list)
	}
}

func TestSanitizeKeyMatchesCommandKeyConvention(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "my-rule.set.json", `{"global": [{"feature": "avg_exec_time", "duration": 60, "threshold": 500}]}`)

	registry, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, outcome := registry.Resolve("my_rule_set", "x"); outcome != ResolveList {
		t.Fatalf("sanitized key lookup failed")
	}
}
