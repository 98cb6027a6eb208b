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

// Package classify turns a request path into the stable "command" the
// rest of the engine indexes telemetry and rules by. It is a pure,
// deterministic projection: unlike the teacher's tfd.Classify (which
// defaults to the Vector channel under any uncertainty), a path either
// reduces to a command or it collapses to "no command" — there is no
// ambiguous middle case to default away from.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Classify strips the leading slash, drops any path segment that parses
// entirely as a base-10 integer, and rejoins the rest with "/". An empty
// result or the literal "favicon.ico" reports ignorable=true, meaning the
// request should bypass the rule engine entirely.
func Classify(path string) (command string, ignorable bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segments := strings.Split(trimmed, "/")
	kept := segments[:0:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			continue
		}
		kept = append(kept, seg)
	}
	command = strings.Join(kept, "/")
	if command == "" || command == "favicon.ico" {
		return "", true
	}
	return command, false
}

// CommandKey maps a command to its storage-safe form: every character that
// is not a letter or digit becomes '_'. The mapping is idempotent —
// CommandKey(CommandKey(x)) == CommandKey(x) — since '_' is itself
// replaced by '_'.
func CommandKey(command string) string {
	return nonAlnum.ReplaceAllString(command, "_")
}
