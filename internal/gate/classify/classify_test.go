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

package classify

import "testing"

func TestClassify_StripsIntegerSegments(t *testing.T) {
	cmd, ignorable := Classify("/api/v2/orders/4711/items")
	if ignorable {
		t.Fatalf("expected not ignorable")
	}
	if cmd != "api/v2/orders/items" {
		t.Fatalf("got %q", cmd)
	}
}

func TestClassify_MultipleIntegerSegments(t *testing.T) {
	cmd, ignorable := Classify("/api/orders/4711/items/42")
	if ignorable {
		t.Fatalf("expected not ignorable")
	}
	if cmd != "api/orders/items" {
		t.Fatalf("got %q", cmd)
	}
}

func TestClassify_EmptyPathIsIgnorable(t *testing.T) {
	if _, ignorable := Classify("/"); !ignorable {
		t.Fatalf("expected root path to be ignorable")
	}
	if _, ignorable := Classify(""); !ignorable {
		t.Fatalf("expected empty path to be ignorable")
	}
}

func TestClassify_Favicon(t *testing.T) {
	if _, ignorable := Classify("/favicon.ico"); !ignorable {
		t.Fatalf("expected favicon.ico to be ignorable")
	}
}

func TestClassify_Idempotent(t *testing.T) {
	paths := []string{"/api/orders/items", "/a/b/c", "/single"}
	for _, p := range paths {
		cmd, _ := Classify(p)
		reclassified, _ := Classify("/" + cmd)
		if reclassified != cmd {
			t.Fatalf("classify not idempotent for %q: got %q then %q", p, cmd, reclassified)
		}
	}
}

func TestCommandKey_ReplacesNonAlnum(t *testing.T) {
	got := CommandKey("api/v2/orders-items")
	want := "api_v2_orders_items"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCommandKey_Idempotent(t *testing.T) {
	k1 := CommandKey("api/orders/items")
	k2 := CommandKey(k1)
	if k1 != k2 {
		t.Fatalf("CommandKey not idempotent: %q vs %q", k1, k2)
	}
}
