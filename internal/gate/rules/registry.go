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
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// sanitizeKey turns a rule file's basename into a registry key the same
// way a command is turned into a command key: non-alphanumerics become
// underscores.
func sanitizeKey(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return nonAlnum.ReplaceAllString(base, "_")
}

// Registry is an immutable map of rule-set name to RuleDocument, built
// once at startup and never mutated afterward — there is no
// AddRule/RemoveRule surface, deliberately: every request-path reader sees
// the same snapshot for the life of the process.
type Registry struct {
	docs map[string]RuleDocument
}

// LoadDirectory scans dir (non-recursive) for *.json files. A file that
// fails to parse, or whose rules reference an unknown feature, is logged
// and skipped; startup still succeeds as long as the directory itself is
// readable.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]RuleDocument, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		doc, err := loadRuleFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("rules: skipping %s: %v", entry.Name(), err)
			continue
		}
		docs[sanitizeKey(entry.Name())] = doc
	}
	return &Registry{docs: docs}, nil
}

func loadRuleFile(path string) (RuleDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleDocument{}, err
	}
	var doc RuleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return RuleDocument{}, err
	}
	doc.Global = validateRules(path, doc.Global)
	for cmd, list := range doc.Commands {
		doc.Commands[cmd] = validateRules(path, list)
	}
	return doc, nil
}

// validateRules drops any rule whose feature name isn't a known Feature,
// logging the file and the bad feature rather than failing the whole
// file's load.
func validateRules(path string, in []Rule) []Rule {
	out := in[:0]
	for _, r := range in {
		if _, ok := ParseFeature(r.Feature); !ok {
			log.Printf("rules: %s: dropping rule with unknown feature %q", path, r.Feature)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Resolve implements the registry resolution order from spec §4.3: an
// unknown rule set is "none"; an explicitly-empty per-command list is
// "ignored"; a non-empty per-command list wins over global; otherwise
// global if non-empty; otherwise "none".
func (r *Registry) Resolve(ruleSetName, command string) ([]Rule, ResolveOutcome) {
	doc, ok := r.docs[ruleSetName]
	if !ok {
		return nil, ResolveNone
	}
	if list, ok := doc.Commands[command]; ok {
		if len(list) == 0 {
			return nil, ResolveIgnored
		}
		return list, ResolveList
	}
	if len(doc.Global) > 0 {
		return doc.Global, ResolveList
	}
	return nil, ResolveNone
}
